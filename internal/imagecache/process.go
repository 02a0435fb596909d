package imagecache

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"path"
	"sort"
	"strings"

	_ "golang.org/x/image/webp"
)

// Processor turns fetched bytes into a servable image.
type Processor interface {
	Process(name string, data []byte) (*Image, error)
}

type ProcessorFunc func(name string, data []byte) (*Image, error)

func (f ProcessorFunc) Process(name string, data []byte) (*Image, error) { return f(name, data) }

// Sniff passes the bytes through and detects their content type.
var Sniff Processor = ProcessorFunc(func(name string, data []byte) (*Image, error) {
	return &Image{Name: name, ContentType: http.DetectContentType(data), Data: data}, nil
})

// PNG re-encodes any decodable page as PNG.
var PNG Processor = ProcessorFunc(func(name string, data []byte) (*Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	name = strings.TrimSuffix(name, path.Ext(name)) + ".png"
	return &Image{Name: name, ContentType: "image/png", Data: buf.Bytes()}, nil
})

var builtin = map[string]Processor{
	"":      Sniff,
	"sniff": Sniff,
	"png":   PNG,
}

// ProcessorNames lists the processors that can be assigned to a provider.
func ProcessorNames() []string {
	var out []string
	for name := range builtin {
		if name != "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Processors picks a processor per provider; unassigned providers get Sniff.
type Processors struct {
	byProvider map[string]Processor
}

// NewProcessors resolves a provider-to-processor-name assignment.
func NewProcessors(assign map[string]string) (*Processors, error) {
	p := &Processors{byProvider: map[string]Processor{}}
	for provider, name := range assign {
		proc, ok := builtin[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown image processor %q for %s (have %s)", name, provider, strings.Join(ProcessorNames(), ", "))
		}
		p.byProvider[provider] = proc
	}
	return p, nil
}

func (p *Processors) For(provider string) Processor {
	if p != nil {
		if proc, ok := p.byProvider[provider]; ok {
			return proc
		}
	}
	return Sniff
}
