package validator

import (
	"errors"
	"testing"

	gvalidator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatError(t *testing.T) {
	t.Run("should transform validation errors to formatted errors", func(t *testing.T) {
		type TestStruct struct {
			Name string `validate:"required"`
		}

		err := gvalidator.New().Struct(TestStruct{})
		require.Error(t, err)

		formattedErr := formatError(err)

		assert.ErrorIs(t, formattedErr, ErrValidationFailed)
		assert.Contains(t, formattedErr.Error(), "'Name': value '' does not meet the requirements for the 'required' validation")
	})

	t.Run("should return non validation errors unchanged", func(t *testing.T) {
		original := errors.New("boom")
		assert.Equal(t, original, formatError(original))
	})
}

func TestValidate(t *testing.T) {
	type Account struct {
		ChainID uint64 `validate:"required"`
		Address string `validate:"required,checksum_addr"`
	}

	t.Run("accepts lowercase and checksummed addresses", func(t *testing.T) {
		assert.NoError(t, Validate(Account{ChainID: 1, Address: "0x52908400098527886e0f7030069857d2e4169ee7"}))
		assert.NoError(t, Validate(Account{ChainID: 1, Address: "0x52908400098527886E0F7030069857D2E4169EE7"}))
	})

	t.Run("rejects malformed addresses", func(t *testing.T) {
		err := Validate(Account{ChainID: 1, Address: "0x1234"})
		assert.ErrorIs(t, err, ErrValidationFailed)
		assert.Contains(t, err.Error(), "checksum_addr")
	})

	t.Run("reports every failing field", func(t *testing.T) {
		err := Validate(Account{})
		assert.ErrorIs(t, err, ErrValidationFailed)
		assert.Contains(t, err.Error(), "'ChainID'")
		assert.Contains(t, err.Error(), "'Address'")
	})
}

func TestValidateVar(t *testing.T) {
	assert.NoError(t, ValidateVar("0x0000000000000000000000000000000000000001", "required,checksum_addr"))
	assert.ErrorIs(t, ValidateVar("", "required,checksum_addr"), ErrValidationFailed)
}
