package db

type Task struct {
	ID           string `gorm:"column:id;primaryKey"`
	Title        string `gorm:"column:title;not null;default:''"`
	Description  string `gorm:"column:description;not null;default:''"`
	Status       string `gorm:"column:status;not null;default:'todo'"`
	BranchName   string `gorm:"column:branch_name;not null;default:''"`
	CreatedAt    int64  `gorm:"column:created_at;not null;default:0"`
	UpdatedAt    int64  `gorm:"column:updated_at;not null;default:0"`
	LaunchStatus string `gorm:"column:launch_status;not null;default:''"`
	LaunchError  string `gorm:"column:launch_error;not null;default:''"`
	LaunchedAt   int64  `gorm:"column:launched_at;not null;default:0"`
}

func (Task) TableName() string { return "tasks" }

type RepoHistory struct {
	Path      string `gorm:"column:path;primaryKey"`
	FirstUsed int64  `gorm:"column:first_used_at;not null"`
	LastUsed  int64  `gorm:"column:last_used_at;not null"`
	UseCount  int    `gorm:"column:use_count;not null"`
}

func (RepoHistory) TableName() string { return "repo_history" }
