package repository

import (
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 仓库集合
type Repositories struct {
	User      *UserRepository
	Template  *TemplateRepository
	Instance  *InstanceRepository
	Task      *TaskRepository
	CC        *CarbonCopyRepository
	Comment   *CommentRepository
	ActionLog *ActionLogRepository
	Delegate  *DelegateRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:      NewUserRepository(db),
		Template:  NewTemplateRepository(db),
		Instance:  NewInstanceRepository(db),
		Task:      NewTaskRepository(db),
		CC:        NewCarbonCopyRepository(db),
		Comment:   NewCommentRepository(db),
		ActionLog: NewActionLogRepository(db),
		Delegate:  NewDelegateRepository(db),
	}
}
