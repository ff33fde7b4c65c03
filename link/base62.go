package link

import "regexp"

const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// EncodeBase62 converte o contador global em código curto. 0 vira "0".
func EncodeBase62(n uint64) string {
	if n == 0 {
		return base62Alphabet[:1]
	}
	var buf [11]byte // 62^11 > 2^64
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = base62Alphabet[n%62]
		n /= 62
	}
	return string(buf[i:])
}

const MaxCustomCodeLen = 20

var (
	customCodeRe = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	lookupCodeRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// rotas do próprio serviço não podem virar código customizado.
var reservedCodes = map[string]struct{}{
	"shorten":     {},
	"track":       {},
	"health":      {},
	"monitoring":  {},
	"api":         {},
	"favicon.ico": {},
}

// ValidateCustomCode aplica charset, tamanho e palavras reservadas.
func ValidateCustomCode(code string) error {
	if !customCodeRe.MatchString(code) {
		return &ValidationError{Field: "customShortCode", Msg: "Short code can only contain letters, numbers, and hyphens"}
	}
	if len(code) > MaxCustomCodeLen {
		return &ValidationError{Field: "customShortCode", Msg: "Short code must be 20 characters or fewer"}
	}
	if IsReserved(code) {
		return &ValidationError{Field: "customShortCode", Msg: "Short code is reserved"}
	}
	return nil
}

// LookupCodeOK filtra códigos impossíveis antes de qualquer I/O no redirect.
func LookupCodeOK(code string) bool {
	return code != "" && len(code) <= 64 && lookupCodeRe.MatchString(code)
}

// IsReserved: o código colide com uma rota do serviço.
func IsReserved(code string) bool {
	_, ok := reservedCodes[code]
	return ok
}
