package program

import (
	"sort"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// dumpLabel/dumpSegment/dumpProgram render a laid-out Program to YAML:
// a stable, readable snapshot for -v output and for tests that want to
// assert on addresses without hand-decoding raw bytes.
type dumpLabel struct {
	Name             string `yaml:"name"`
	LocationInSegment int   `yaml:"location_in_segment"`
	AbsoluteLocation uint32 `yaml:"absolute_location"`
}

type dumpSegment struct {
	Name             string      `yaml:"name"`
	LocationInFile   uint32      `yaml:"location_in_file"`
	LocationInMemory uint32      `yaml:"location_in_memory"`
	FileSize         int         `yaml:"file_size"`
	Size             int         `yaml:"size"`
	Labels           []dumpLabel `yaml:"labels"`
}

type dumpProgram struct {
	Machine    int           `yaml:"machine"`
	Endianness string        `yaml:"endianness"`
	Align      int           `yaml:"align"`
	Segments   []dumpSegment `yaml:"segments"`
}

// Dump renders p (after Layout has run) as YAML.
func (p *Program) Dump() ([]byte, error) {
	endianness := "little"
	if p.Metadata.Endianness == BigEndian {
		endianness = "big"
	}
	d := dumpProgram{
		Machine:    p.Metadata.Machine,
		Endianness: endianness,
		Align:      p.Metadata.Align,
	}
	for _, seg := range p.Segments {
		ds := dumpSegment{
			Name:             seg.Name,
			LocationInFile:   seg.LocationInFile,
			LocationInMemory: seg.LocationInMemory,
			FileSize:         seg.FileSize,
			Size:             seg.Size,
		}
		names := lo.Keys(seg.Labels)
		sort.Strings(names)
		ds.Labels = lo.Map(names, func(name string, _ int) dumpLabel {
			lbl := seg.Labels[name]
			return dumpLabel{
				Name:              lbl.Name,
				LocationInSegment: lbl.LocationInSegment,
				AbsoluteLocation:  lbl.AbsoluteLocation,
			}
		})
		d.Segments = append(d.Segments, ds)
	}
	return yaml.Marshal(d)
}
