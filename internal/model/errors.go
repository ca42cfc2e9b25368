package model

import "github.com/rotisserie/eris"

// ErrValidation marks a missing or malformed required field. Validation
// failures are surfaced immediately to the caller and never create partial
// state. Match with eris.Is(err, model.ErrValidation).
var ErrValidation = eris.New("invalid input")
