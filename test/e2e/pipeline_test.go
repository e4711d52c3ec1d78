// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.
package e2e

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/captune-project/captune/pkg/dataset"
	"github.com/captune-project/captune/pkg/loader"
	"github.com/captune-project/captune/pkg/tokenizer"
	"github.com/captune-project/captune/pkg/tuning"
	"github.com/captune-project/captune/pkg/utils/consts"
	_ "github.com/captune-project/captune/presets/models/llama"
)

const hubVocab = `{
	"▁": 10, "▁draw": 11, "▁a": 12, "▁circle": 13, "▁red": 14,
	"▁square": 15, "draw": 16, "circle": 17, "rect": 18, ";": 19, "▁\\": 20
}`

const trainData = `{"caption": "draw a circle", "code": "\\draw circle;"}
{"caption": "a red square", "code": "\\draw rect;"}
`

// recordingTrainer stands in for the accelerate launch process and fabricates
// the checkpoint a real trainer leaves behind.
type recordingTrainer struct {
	job *tuning.TrainJob
}

func (r *recordingTrainer) Train(_ context.Context, job *tuning.TrainJob) error {
	r.job = job
	dir := filepath.Join(job.OutputDir, "checkpoint-24")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, consts.TrainerStateFile), []byte(`{"global_step": 24}`), 0644)
}

func (r *recordingTrainer) SaveState(outputDir string) error {
	return tuning.NewLaunchTrainer().SaveState(outputDir)
}

var _ = Describe("Captune tuning pipeline", func() {
	var (
		hub       *httptest.Server
		workDir   string
		outputDir string
		dataPath  string
	)

	BeforeEach(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/huggyllama/llama-7b/resolve/main/vocab.json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(hubVocab))
		})
		mux.HandleFunc("/huggyllama/llama-7b/resolve/main/config.json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"model_type": "llama"}`))
		})
		hub = httptest.NewServer(mux)

		var err error
		workDir, err = os.MkdirTemp("", "captune-e2e")
		Expect(err).NotTo(HaveOccurred())
		outputDir = filepath.Join(workDir, "out")
		dataPath = filepath.Join(workDir, "train.jsonl")
		Expect(os.WriteFile(dataPath, []byte(trainData), 0644)).To(Succeed())
	})

	AfterEach(func() {
		hub.Close()
		Expect(os.RemoveAll(workDir)).To(Succeed())
	})

	load := func() (*loader.ModelHandle, *tokenizer.Tokenizer, *dataset.Dataset, tuning.TuningParams) {
		handle, tok, err := loader.Load(context.Background(), loader.LoadSpec{
			Preset:   "llama-7b",
			Endpoint: hub.URL,
			CacheDir: filepath.Join(workDir, "cache"),
			Client:   hub.Client(),
		})
		Expect(err).NotTo(HaveOccurred())

		ds, err := dataset.LoadJSONL(dataPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(ds.Len()).To(Equal(2))

		params := tuning.DefaultTuningParams(outputDir)
		params.WorldSize = 1
		return handle, tok, ds, params
	}

	It("should tune the preset end to end and persist the adapter", func() {
		handle, tok, ds, params := load()
		trainer := &recordingTrainer{}
		params.Trainer = trainer

		result, err := tuning.Train(context.Background(), handle, tok, ds, params)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.TrainExamples).To(Equal(2))
		Expect(result.GradientAccumulationSteps).To(Equal(128))
		Expect(result.ResumedFromCheckpoint).To(BeEmpty())

		Expect(trainer.job).NotTo(BeNil())
		Expect(trainer.job.Dataset.Len()).To(Equal(2))
		for _, record := range trainer.job.Dataset.Encoded() {
			Expect(record.InputIDs[0]).To(Equal(1), "sequences start with bos")
			Expect(record.InputIDs[len(record.InputIDs)-1]).To(Equal(2), "sequences end with eos")
			Expect(len(record.InputIDs)).To(Equal(len(record.Labels)))
		}

		Expect(result.AdapterConfigPath).To(BeARegularFile())
		Expect(result.AdapterModelPath).To(Equal(filepath.Join(outputDir, consts.AdapterModelFile)))
		Expect(filepath.Join(outputDir, consts.TrainerStateFile)).To(BeARegularFile())
	})

	It("should refuse a dirty output directory and resume from a checkpoint", func() {
		handle, tok, ds, params := load()
		Expect(os.MkdirAll(outputDir, 0755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(outputDir, "stray"), []byte("x"), 0644)).To(Succeed())

		trainer := &recordingTrainer{}
		params.Trainer = trainer
		_, err := tuning.Train(context.Background(), handle, tok, ds, params)
		Expect(err).To(MatchError(tuning.ErrOutputDirNotEmpty))
		Expect(trainer.job).To(BeNil())

		// A prior run's checkpoint turns the conflict into a resume.
		checkpointDir := filepath.Join(outputDir, "checkpoint-12")
		Expect(os.MkdirAll(checkpointDir, 0755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(checkpointDir, consts.TrainerStateFile), []byte(`{"global_step": 12}`), 0644)).To(Succeed())

		result, err := tuning.Train(context.Background(), handle, tok, ds, params)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.ResumedFromCheckpoint).To(Equal(checkpointDir))
		Expect(trainer.job.Args.ResumeFromCheckpoint).NotTo(BeNil())
		Expect(*trainer.job.Args.ResumeFromCheckpoint).To(Equal(checkpointDir))
	})
})
