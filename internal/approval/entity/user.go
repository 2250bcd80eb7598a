package entity

import (
	"time"
)

// User 用户实体
type User struct {
	ID           string     `json:"id" gorm:"primaryKey;size:32"`
	FeishuUserID string     `json:"feishu_user_id" gorm:"size:64;uniqueIndex"`
	FeishuOpenID string     `json:"feishu_open_id" gorm:"size:64"`
	EmployeeNo   string     `json:"employee_no" gorm:"size:32;index"`
	Username     string     `json:"username" gorm:"size:64;not null;uniqueIndex"`
	Name         string     `json:"name" gorm:"size:64;not null"`
	Email        string     `json:"email" gorm:"size:128"`
	Mobile       string     `json:"mobile" gorm:"size:20"`
	DepartmentID string     `json:"department_id" gorm:"size:32"`
	Status       string     `json:"status" gorm:"size:16;not null;default:active"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// 关联
	Department *Department `json:"department,omitempty" gorm:"foreignKey:DepartmentID"`
}

func (User) TableName() string {
	return "users"
}

// Department 部门实体
type Department struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	ParentID  string    `json:"parent_id" gorm:"size:32"`
	Path      string    `json:"path" gorm:"size:512"`
	Level     int       `json:"level" gorm:"not null;default:1"`
	LeaderID  string    `json:"leader_id" gorm:"size:32"`
	Status    string    `json:"status" gorm:"size:16;not null;default:active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	Leader *User `json:"leader,omitempty" gorm:"foreignKey:LeaderID"`
}

func (Department) TableName() string {
	return "departments"
}
