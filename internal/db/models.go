package db

// LaunchRun is one invocation of the launcher. EndedAt stays 0 while the
// external process runs or when the launcher died before recording the end.
type LaunchRun struct {
	RunID     string `gorm:"column:run_id;primaryKey"`
	Runtime   string `gorm:"column:runtime;not null;default:''"`
	Port      int    `gorm:"column:port;not null;default:0"`
	Directory string `gorm:"column:directory;not null;default:''"`
	Debug     bool   `gorm:"column:debug;not null;default:false"`
	StartedAt int64  `gorm:"column:started_at;not null;default:0"`
	EndedAt   int64  `gorm:"column:ended_at;not null;default:0"`
	ExitCode  int    `gorm:"column:exit_code;not null;default:-1"`
	Outcome   string `gorm:"column:outcome;not null;default:'running'"`
}

func (LaunchRun) TableName() string { return "launch_runs" }

type DirHistory struct {
	Path            string `gorm:"column:path;primaryKey"`
	FirstAccessedAt int64  `gorm:"column:first_accessed_at;not null"`
	LastAccessedAt  int64  `gorm:"column:last_accessed_at;not null"`
	AccessCount     int    `gorm:"column:access_count;not null"`
}

func (DirHistory) TableName() string { return "dir_history" }
