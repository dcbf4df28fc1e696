package domain

import "time"

// Run is one training run as recorded by the experiment tracker.
type Run struct {
	// ID uniquely identifies the run.
	ID string `yaml:"id" json:"id"`

	// Experiment groups runs that compete for "best run" selection.
	Experiment string `yaml:"experiment" json:"experiment"`

	// Metrics holds validation metrics such as test_f1.
	Metrics map[string]float64 `yaml:"metrics" json:"metrics"`

	// ArtifactKey locates the fitted preprocessor in the artifact store.
	ArtifactKey string `yaml:"artifact_key" json:"artifact_key"`

	// SchemaFingerprint is the fingerprint of the schema the run was fit on.
	SchemaFingerprint string `yaml:"schema_fingerprint" json:"schema_fingerprint"`

	// StartedAt is when the run began.
	StartedAt time.Time `yaml:"started_at" json:"started_at"`
}

// Prediction is the model's output for one row of a feature matrix.
type Prediction struct {
	// Row is the position of the row in the matrix.
	Row int `json:"row"`

	// RowID echoes the row's row_id.
	RowID string `json:"row_id,omitempty"`

	// Label is the predicted class.
	Label int `json:"prediction"`

	// Probability is the predicted probability of the positive class.
	Probability float64 `json:"probability"`
}
