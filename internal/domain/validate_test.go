package domain

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func validRequest() RegistrationRequest {
	return RegistrationRequest{
		Nome:     "João da Silva",
		Email:    "joao@test.com",
		Password: "secret123",
		CPF:      "11144477735",
		Telefone: "31988887777",
		Endereco: Address{
			CEP:        "30130-010",
			Logradouro: "Avenida Afonso Pena",
			Numero:     "1000",
			Bairro:     "Centro",
			Cidade:     "Belo Horizonte",
			Estado:     "MG",
		},
		TipoMembro:    MemberTypeMembro,
		PlanID:        "plan-monthly-25",
		PaymentMethod: PaymentMethodPix,
	}
}

func TestValidateRegistration_ValidPixRequest(t *testing.T) {
	result := ValidateRegistration(validRequest())
	if !result.IsValid {
		t.Fatalf("expected valid request, got errors: %v", result.Errors)
	}
}

func TestValidateRegistration_AccumulatesAllErrors(t *testing.T) {
	req := validRequest()
	req.Nome = "J"
	req.Email = "not-an-email"
	req.Password = "123"
	req.CPF = "11111111111"
	req.Telefone = "123"
	req.Endereco.CEP = "123"
	req.Endereco.Logradouro = "Rua"
	req.TipoMembro = "apostolo"
	req.PlanID = " "
	req.PaymentMethod = "BOLETO"

	result := ValidateRegistration(req)
	if result.IsValid {
		t.Fatal("expected invalid request")
	}
	if len(result.Errors) != 10 {
		t.Fatalf("expected 10 accumulated errors, got %d: %v", len(result.Errors), result.Errors)
	}
}

func TestValidateRegistration_CPFSpecificMessage(t *testing.T) {
	req := validRequest()
	req.CPF = "11144477734"

	result := ValidateRegistration(req)
	if result.IsValid {
		t.Fatal("expected invalid request")
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "CPF") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a CPF-specific message, got %v", result.Errors)
	}
}

func TestValidateRegistration_CreditCardRequiresCardData(t *testing.T) {
	req := validRequest()
	req.PaymentMethod = PaymentMethodCreditCard
	req.CardData = nil

	result := ValidateRegistration(req)
	if result.IsValid {
		t.Fatal("expected invalid request without card data")
	}
}

func TestValidateRegistration_CreditCardFieldChecks(t *testing.T) {
	currentYear := time.Now().Year()

	tests := []struct {
		name   string
		mutate func(*CardData)
	}{
		{"short holder name", func(c *CardData) { c.HolderName = "A" }},
		{"card number too short", func(c *CardData) { c.Number = "411111111111" }},
		{"card number too long", func(c *CardData) { c.Number = strings.Repeat("4", 20) }},
		{"month zero", func(c *CardData) { c.ExpiryMonth = "0" }},
		{"month thirteen", func(c *CardData) { c.ExpiryMonth = "13" }},
		{"expired year", func(c *CardData) { c.ExpiryYear = strconv.Itoa(currentYear - 1) }},
		{"year too far out", func(c *CardData) { c.ExpiryYear = strconv.Itoa(currentYear + 21) }},
		{"ccv too short", func(c *CardData) { c.CCV = "12" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := CardData{
				HolderName:  "Joao da Silva",
				Number:      "4111111111111111",
				ExpiryMonth: "12",
				ExpiryYear:  strconv.Itoa(currentYear + 2),
				CCV:         "123",
			}
			tt.mutate(&card)

			req := validRequest()
			req.PaymentMethod = PaymentMethodCreditCard
			req.CardData = &card

			if result := ValidateRegistration(req); result.IsValid {
				t.Fatal("expected invalid card data")
			}
		})
	}
}

func TestValidCPF(t *testing.T) {
	tests := []struct {
		name string
		cpf  string
		want bool
	}{
		{"known valid", "11144477735", true},
		{"valid with punctuation", "111.444.777-35", true},
		{"wrong second check digit", "11144477734", false},
		{"wrong first check digit", "11144477745", false},
		{"all repeated digits", "00000000000", false},
		{"too short", "1114447773", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidCPF(tt.cpf); got != tt.want {
				t.Fatalf("ValidCPF(%q) = %t, want %t", tt.cpf, got, tt.want)
			}
		})
	}
}

func TestNextBillingDate(t *testing.T) {
	from := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		cycle string
		want  time.Time
	}{
		{CycleMonthly, time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)},
		{CycleSemiannually, time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)},
		{CycleYearly, time.Date(2027, 1, 15, 10, 0, 0, 0, time.UTC)},
		{"WEEKLY", time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.cycle, func(t *testing.T) {
			if got := NextBillingDate(tt.cycle, from); !got.Equal(tt.want) {
				t.Fatalf("NextBillingDate(%s) = %v, want %v", tt.cycle, got, tt.want)
			}
		})
	}
}
