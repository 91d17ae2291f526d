package extraction

import "encoding/base64"

// EncodeImage returns the standard base64 encoding of the exact image bytes
func EncodeImage(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// dataURL embeds an encoded payload in the data URL the chat API expects
func dataURL(payload string) string {
	return "data:image/jpeg;base64," + payload
}
