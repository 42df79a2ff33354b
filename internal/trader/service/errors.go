package service

import "errors"

var (
	ErrAlreadyAdjusted  = errors.New("trade already adjusted")
	ErrAdjustRefused    = errors.New("adjustment not allowed by trading config")
	ErrStaleTrade       = errors.New("trade changed concurrently")
	ErrInvalidStatus    = errors.New("trade status does not allow this operation")
	ErrNoCloseOrder     = errors.New("no outstanding close order found")
	ErrInvalidSignal    = errors.New("invalid signal")
	ErrInvalidCSVHeader = errors.New("csv must have a symbol column")
)
