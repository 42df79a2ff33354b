package repository

import "errors"

var (
	ErrTradeNotFound          = errors.New("trade not found")
	ErrTrackedCompanyNotFound = errors.New("tracked company not found")
	ErrNoFilter               = errors.New("no filter provided")
)
