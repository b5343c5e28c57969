package configs

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// BrowserGlobal is the window property the tracker web app reads its configuration from.
const BrowserGlobal = "window.ALPHADIP_CONFIG"

// RenderBrowserConfig renders c as the JavaScript assignment loaded by the web app.
// The JSON encoder escapes <, > and & so the output is safe inside a script tag.
func RenderBrowserConfig(c Config) ([]byte, error) {
	body, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal browser config: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("// Generated by alphadip-config. Do not edit.\n")
	buf.WriteString(BrowserGlobal + " = ")
	buf.Write(body)
	buf.WriteString(";\n")
	return buf.Bytes(), nil
}
