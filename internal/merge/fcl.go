package merge

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"
)

// JobConfig is everything the merge job configuration embeds.
type JobConfig struct {
	AppFamily  string
	AppVersion string
	FileType   string
	Group      string
	RunType    string
	DataTier   string
	DataStream string
	OutputName string
	Parents    []string
}

var fclTemplate = template.Must(template.New("merge.fcl").Funcs(template.FuncMap{
	"q":    strconv.Quote,
	"list": quoteList,
}).Parse(`process_name: Merge
services:
{
  scheduler: { defaultExceptions: false }
  FileCatalogMetadata:
  {
    applicationFamily: {{ q .AppFamily }}
    applicationVersion: {{ q .AppVersion }}
    fileType: {{ q .FileType }}
    group: {{ q .Group }}
    runType: {{ q .RunType }}
  }
}
source:
{
  module_type: RootInput
}
physics:
{
  stream1: [ {{ .DataStream }} ]
}
outputs:
{
  {{ .DataStream }}:
  {
    module_type: RootOutput
    fileName: {{ q .OutputName }}
    dataTier: {{ q .DataTier }}
    streamName: {{ q .DataStream }}
    compressionLevel: 3
  }
}
{{- if .Parents }}
merge_parents: [ {{ list .Parents }} ]
{{- end }}
microboone_tfile_metadata:
{
  JSONFileName: "ana_hist.root.json"
  GenerateTFileMetadata: false
  dataTier: "root-tuple"
  fileFormat: "root"
}
`))

func quoteList(items []string) string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = strconv.Quote(s)
	}
	return strings.Join(out, ", ")
}

// RenderFCL produces the job configuration text. A blank data stream falls
// back to the default output label.
func RenderFCL(cfg JobConfig) ([]byte, error) {
	if cfg.DataStream == "" {
		cfg.DataStream = "out1"
	}
	if cfg.OutputName == "" {
		return nil, fmt.Errorf("render fcl: output name required")
	}
	var buf bytes.Buffer
	if err := fclTemplate.Execute(&buf, cfg); err != nil {
		return nil, fmt.Errorf("render fcl: %w", err)
	}
	return buf.Bytes(), nil
}
