package profile

import "classjudge/internal/judge/sandbox/spec"

// TaskType identifies the sandbox task category.
type TaskType string

const (
	TaskTypeCompile TaskType = "compile"
	TaskTypeRun     TaskType = "run"
)

// TaskProfile defines sandbox resources and security settings for a task type.
type TaskProfile struct {
	LanguageID     string             `yaml:"languageID"`
	TaskType       TaskType           `yaml:"taskType"`
	RootFS         string             `yaml:"rootFS"`
	SeccompProfile string             `yaml:"seccompProfile"`
	DefaultLimits  spec.ResourceLimit `yaml:"defaultLimits"`
}
