package service

import (
	"strconv"
	"strings"

	"taskflow/internal/domain/errors"
	"taskflow/internal/domain/models"

	"github.com/go-playground/validator"
)

var (
	emailRule       = "required,max=" + strconv.Itoa(models.MaxEmailLen)
	passwordRule    = "required,max=" + strconv.Itoa(models.MaxPasswordLen)
	titleRule       = "required,max=" + strconv.Itoa(models.MaxTitleLen)
	descriptionRule = "max=" + strconv.Itoa(models.MaxDescriptionLen)
	statusRule      = "taskstatus"
)

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("taskstatus", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseStatus(fl.Field().String())
		return ok
	}); err != nil {
		panic(err)
	}
	return v
}

func checkVar(v *validator.Validate, value, rule string, fieldErr error) error {
	if err := v.Var(value, rule); err != nil {
		return fieldErr
	}
	return nil
}

// credentials trims the email, checks both fields and returns the email to
// store. The password is hashed exactly as given.
func credentials(v *validator.Validate, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if err := checkVar(v, email, emailRule, errors.ErrInvalidEmail); err != nil {
		return "", err
	}
	if err := checkVar(v, strings.TrimSpace(password), passwordRule, errors.ErrInvalidPassword); err != nil {
		return "", err
	}
	return email, nil
}

func normalizeTitle(v *validator.Validate, title string) (string, error) {
	title = strings.TrimSpace(title)
	return title, checkVar(v, title, titleRule, errors.ErrInvalidTitle)
}

func normalizeDescription(v *validator.Validate, description string) (string, error) {
	description = strings.TrimSpace(description)
	return description, checkVar(v, description, descriptionRule, errors.ErrInvalidDescription)
}

func normalizeStatus(v *validator.Validate, status string) (models.Status, error) {
	if err := checkVar(v, status, statusRule, errors.ErrInvalidStatus); err != nil {
		return "", err
	}
	parsed, _ := models.ParseStatus(status)
	return parsed, nil
}
