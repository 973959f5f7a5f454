package voting

import "errors"

var (
	ErrNotEnoughParticipants = errors.New("voting requires at least 2 participants")
	ErrNoFilms               = errors.New("voting requires at least 1 film in the catalog")
)
