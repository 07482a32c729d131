package repository

import "time"

// UserListFilter 查询用户列表的过滤条件
type UserListFilter struct {
	Page        int
	PageSize    int
	Keyword     string
	IsAdmin     *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// ReferralListFilter 查询推荐记录列表的过滤条件
type ReferralListFilter struct {
	Page        int
	PageSize    int
	ReferrerID  uint
	Status      string
	Origin      string
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// ReferralClickListFilter 查询点击记录列表的过滤条件
type ReferralClickListFilter struct {
	Page       int
	PageSize   int
	ReferrerID uint
}
