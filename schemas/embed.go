// Package schemas embeds the JSON Schemas of the tool-call contract. Each
// tool's params object is validated against <tool>.schema.json before the
// dispatcher touches the session store.
package schemas

import "embed"

// FS holds every *.schema.json file in this directory.
//
//go:embed *.schema.json
var FS embed.FS
