package daraja

import (
	"encoding/json"
	"net/http"
)

func decodeBody(r *http.Request, dest any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dest)
}
