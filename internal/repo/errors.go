package repo

import "errors"

var (
	// ErrNotFound — в failed_crawls нет записи с таким id.
	ErrNotFound = errors.New("failed crawl not found")

	// ErrAlreadyExists — запись с таким id уже архивирована.
	ErrAlreadyExists = errors.New("failed crawl already archived")
)
