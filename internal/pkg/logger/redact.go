package logger

// RedactSecret masks a secret value for safe logging.
// Values longer than 8 characters keep the first and last 4 characters:
// "EAAGxyz123abc456" → "EAAG****c456". Shorter values are fully masked.
func RedactSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) > 8 {
		return v[:4] + "****" + v[len(v)-4:]
	}
	return "****"
}
