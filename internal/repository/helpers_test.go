package repository

import "github.com/lib/pq"

func uniqueViolationErr() error {
	return &pq.Error{Code: "23505"}
}
