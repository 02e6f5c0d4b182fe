/**
 * @description
 * Pure validation of a RegistrationRequest. All violated rules are
 * accumulated and returned together so the caller can report everything
 * wrong in one response. No I/O, never panics.
 */
package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValidationResult carries the outcome of validating a RegistrationRequest.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

var (
	emailPattern     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nonDigitPattern  = regexp.MustCompile(`\D`)
	// RE2 has no backreferences, so "same digit 11 times" is spelled out.
	repeatedCPFMatch = regexp.MustCompile(`^(0{11}|1{11}|2{11}|3{11}|4{11}|5{11}|6{11}|7{11}|8{11}|9{11})$`)
)

// ValidateRegistration checks structural and business validity of a
// registration submission, least to most specific.
func ValidateRegistration(data RegistrationRequest) ValidationResult {
	var errs []string

	if len(strings.TrimSpace(data.Nome)) < 2 {
		errs = append(errs, "Nome deve ter pelo menos 2 caracteres")
	}
	if !emailPattern.MatchString(data.Email) {
		errs = append(errs, "Email inválido")
	}
	if len(data.Password) < 6 {
		errs = append(errs, "Senha deve ter pelo menos 6 caracteres")
	}
	if !ValidCPF(data.CPF) {
		errs = append(errs, "CPF inválido")
	}
	if n := len(digitsOnly(data.Telefone)); n < 10 || n > 11 {
		errs = append(errs, "Telefone inválido")
	}
	if len(digitsOnly(data.Endereco.CEP)) != 8 {
		errs = append(errs, "CEP inválido")
	}
	if len(strings.TrimSpace(data.Endereco.Logradouro)) < 5 {
		errs = append(errs, "Logradouro deve ter pelo menos 5 caracteres")
	}
	if !validMemberType(data.TipoMembro) {
		errs = append(errs, "Tipo de membro inválido")
	}
	if strings.TrimSpace(data.PlanID) == "" {
		errs = append(errs, "Plano é obrigatório")
	}

	switch data.PaymentMethod {
	case PaymentMethodCreditCard:
		errs = append(errs, validateCard(data.CardData)...)
	case PaymentMethodPix:
		// no extra fields
	default:
		errs = append(errs, "Método de pagamento inválido")
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

func validateCard(card *CardData) []string {
	if card == nil {
		return []string{"Dados do cartão são obrigatórios"}
	}

	var errs []string
	if len(strings.TrimSpace(card.HolderName)) < 2 {
		errs = append(errs, "Nome do portador inválido")
	}
	if n := len(digitsOnly(card.Number)); n < 13 || n > 19 {
		errs = append(errs, "Número do cartão inválido")
	}
	if month, err := strconv.Atoi(card.ExpiryMonth); err != nil || month < 1 || month > 12 {
		errs = append(errs, "Mês de expiração inválido")
	}
	currentYear := time.Now().Year()
	if year, err := strconv.Atoi(card.ExpiryYear); err != nil || year < currentYear || year > currentYear+20 {
		errs = append(errs, "Ano de expiração inválido")
	}
	if n := len(digitsOnly(card.CCV)); n < 3 || n > 4 {
		errs = append(errs, "CCV inválido")
	}
	return errs
}

// ValidCPF checks the two verification digits of a Brazilian CPF using the
// modulo-11 algorithm. All-repeated-digit sequences are rejected outright.
func ValidCPF(cpf string) bool {
	clean := digitsOnly(cpf)
	if len(clean) != 11 {
		return false
	}
	if repeatedCPFMatch.MatchString(clean) {
		return false
	}

	if checkDigit(clean, 9) != int(clean[9]-'0') {
		return false
	}
	return checkDigit(clean, 10) == int(clean[10]-'0')
}

// checkDigit computes the CPF verification digit over the first n digits,
// with weights n+1 down to 2.
func checkDigit(cpf string, n int) int {
	sum := 0
	for i := 0; i < n; i++ {
		sum += int(cpf[i]-'0') * (n + 1 - i)
	}
	remainder := (sum * 10) % 11
	if remainder == 10 || remainder == 11 {
		remainder = 0
	}
	return remainder
}

func validMemberType(t MemberType) bool {
	for _, v := range ValidMemberTypes {
		if t == v {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	return nonDigitPattern.ReplaceAllString(s, "")
}
