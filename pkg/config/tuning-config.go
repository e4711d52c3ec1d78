package config

type Config struct {
	TrainingConfig TrainingConfig `yaml:"training_config"`
}

type TrainingConfig struct {
	ModelConfig       *ModelConfig       `yaml:"ModelConfig"`
	TokenizerParams   *TokenizerParams   `yaml:"TokenizerParams"`
	LoraConfig        *LoraConfig        `yaml:"LoraConfig"`
	TrainingArguments *TrainingArguments `yaml:"TrainingArguments"`
	DatasetConfig     *DatasetConfig     `yaml:"DatasetConfig"`
}

type ModelConfig struct {
	PretrainedModelNameOrPath *string `yaml:"pretrained_model_name_or_path,omitempty"`
	CacheDir                  *string `yaml:"cache_dir,omitempty"`
	LocalFilesOnly            *bool   `yaml:"local_files_only,omitempty"`
	Revision                  *string `yaml:"revision,omitempty"`
	TorchDtype                *string `yaml:"torch_dtype,omitempty"`
	PadTokenID                *int    `yaml:"pad_token_id,omitempty"`
	BosTokenID                *int    `yaml:"bos_token_id,omitempty"`
	EosTokenID                *int    `yaml:"eos_token_id,omitempty"`
}

type TokenizerParams struct {
	ModelMaxLength *int    `yaml:"model_max_length,omitempty"`
	UnkToken       *string `yaml:"unk_token,omitempty"`
	BosToken       *string `yaml:"bos_token,omitempty"`
	EosToken       *string `yaml:"eos_token,omitempty"`
	PadToken       *string `yaml:"pad_token,omitempty"`
	SepToken       *string `yaml:"sep_token,omitempty"`
	MaskToken      *string `yaml:"mask_token,omitempty"`
	PaddingSide    *string `yaml:"padding_side,omitempty"`
}

// LoraConfig represents the low-rank adapter configuration handed to the
// external trainer.
type LoraConfig struct {
	R             *int      `yaml:"r,omitempty"`
	LoraAlpha     *int      `yaml:"lora_alpha,omitempty"`
	LoraDropout   *float64  `yaml:"lora_dropout,omitempty"`
	Bias          *string   `yaml:"bias,omitempty"`
	TaskType      *string   `yaml:"task_type,omitempty"`
	ModulesToSave *[]string `yaml:"modules_to_save,omitempty"`
	TargetModules *[]string `yaml:"target_modules,omitempty"`
}

// TrainingArguments represents the training arguments for the external
// trainer.
type TrainingArguments struct {
	OutputDir                 string   `yaml:"output_dir"`
	OverwriteOutputDir        *bool    `yaml:"overwrite_output_dir,omitempty"`
	PerDeviceTrainBatchSize   *int     `yaml:"per_device_train_batch_size,omitempty"`
	GradientAccumulationSteps *int     `yaml:"gradient_accumulation_steps,omitempty"`
	LearningRate              *float64 `yaml:"learning_rate,omitempty"`
	NumTrainEpochs            *float64 `yaml:"num_train_epochs,omitempty"`
	WarmupRatio               *float64 `yaml:"warmup_ratio,omitempty"`
	LrSchedulerType           *string  `yaml:"lr_scheduler_type,omitempty"`
	Optim                     *string  `yaml:"optim,omitempty"`
	Fp16                      *bool    `yaml:"fp16,omitempty"`
	LoggingSteps              *float64 `yaml:"logging_steps,omitempty"`
	SaveStrategy              *string  `yaml:"save_strategy,omitempty"`
	SaveTotalLimit            *int     `yaml:"save_total_limit,omitempty"`
	GroupByLength             *bool    `yaml:"group_by_length,omitempty"`
	GradientCheckpointing     *bool    `yaml:"gradient_checkpointing,omitempty"`
	DdpFindUnusedParameters   *bool    `yaml:"ddp_find_unused_parameters,omitempty"`
	ResumeFromCheckpoint      *string  `yaml:"resume_from_checkpoint,omitempty"`
}

type DatasetConfig struct {
	ContextColumn  *string `yaml:"context_column,omitempty"`
	ResponseColumn *string `yaml:"response_column,omitempty"`
	TrainOnInputs  *bool   `yaml:"train_on_inputs,omitempty"`
	NumPatches     *int    `yaml:"num_patches,omitempty"`
	MinLen         *int    `yaml:"min_len,omitempty"`
}
