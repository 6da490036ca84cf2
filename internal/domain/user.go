package domain

// Campos reservados de un registro de identidad.
const (
	FieldID          = "_id"
	FieldKey         = "_key"
	FieldPassword    = "_password"
	FieldOTPHash     = "_otp_hash"
	FieldOTPExpiry   = "_otp_expiry"
	FieldOTPAttempts = "_otp_attempts"
	FieldProvider    = "_provider"
)

// Document es un documento genérico de una colección.
type Document map[string]any

// Filter es un filtro de igualdad (con operadores opcionales) sobre documentos.
type Filter map[string]any

// Update es una especificación de actualización con operadores ($set, $inc, $unset...).
type Update map[string]any

// Clone devuelve una copia superficial del documento.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// String obtiene un campo string, vacío si no existe o tiene otro tipo.
func (d Document) String(field string) string {
	s, _ := d[field].(string)
	return s
}

// ID devuelve el identificador generado por el store.
func (d Document) ID() string {
	return d.String(FieldID)
}

// Key devuelve el identificador de negocio del documento.
func (d Document) Key() string {
	return d.String(FieldKey)
}

// PasswordHash devuelve el hash almacenado, vacío si la identidad no tiene password.
func (d Document) PasswordHash() string {
	return d.String(FieldPassword)
}

// Public elimina credenciales y estado OTP antes de exponer el documento.
func (d Document) Public() Document {
	out := d.Clone()
	delete(out, FieldPassword)
	delete(out, FieldOTPHash)
	delete(out, FieldOTPExpiry)
	delete(out, FieldOTPAttempts)
	return out
}

// KeyFilter combina _key con condiciones adicionales. El _key siempre prevalece.
func KeyFilter(key string, query Filter) Filter {
	out := make(Filter, len(query)+1)
	for k, v := range query {
		out[k] = v
	}
	out[FieldKey] = key
	return out
}
