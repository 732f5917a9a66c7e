package bridge

import (
	"github.com/ivlev/scriptvideo/internal/config"
	"github.com/ivlev/scriptvideo/internal/script"
)

// CreateMessage is the payload of <prefix>.create. When ImageDir is set the folder
// flow is used; otherwise Images are taken as given and Script (raw directive text)
// is parsed unless Instructions are supplied.
type CreateMessage struct {
	ImageDir     string                `json:"image_dir,omitempty"`
	Scripts      []string              `json:"scripts,omitempty"`
	Images       []string              `json:"images,omitempty"`
	Script       string                `json:"script,omitempty"`
	Instructions []script.Instruction  `json:"instructions,omitempty"`
	AudioPath    string                `json:"audio_path"`
	OutputPath   string                `json:"output_path,omitempty"`
	Settings     config.EncodeSettings `json:"settings"`
}

type CancelMessage struct {
	JobID string `json:"job_id"`
}

type Reply struct {
	JobID string `json:"job_id,omitempty"`
	Error string `json:"error,omitempty"`
}
