package panel

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrImageDecode         = errors.New("image could not be decoded")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrCreditCheck         = errors.New("credit check failed")
	ErrGenerationTimeout   = errors.New("image generation timed out")
	ErrNoImageProduced     = errors.New("model returned no image")
	ErrGenerationFailed    = errors.New("image generation failed")
)

// IsClientError - 4xx로 응답해야 하는 에러인지
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrImageDecode)
}
