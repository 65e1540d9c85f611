package quote

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidSTL indicates the upload is not a parseable STL body.
var ErrInvalidSTL = errors.New("quote: invalid stl")

const binaryHeaderSize = 84
const binaryTriangleSize = 50

// maxTriangles caps parsing so a forged header cannot demand gigabytes.
const maxTriangles = 5_000_000

type vec3 struct {
	X, Y, Z float64
}

func (v vec3) dot(o vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v vec3) cross(o vec3) vec3 {
	return vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// VolumeCm3 parses an STL body (binary or ASCII) and returns the enclosed
// volume in cm³: the sum of signed tetrahedron volumes against the origin,
// so orientation and position do not matter for a closed mesh. Vertex
// coordinates are assumed to be millimetres.
func VolumeCm3(r io.Reader) (float64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	if isBinarySTL(data) {
		return binaryVolume(data)
	}
	return asciiVolume(data)
}

// isBinarySTL distinguishes the two encodings. The declared triangle count
// matching the byte length is definitive; an ASCII body starts with "solid"
// and never lines up that way.
func isBinarySTL(data []byte) bool {
	if len(data) < binaryHeaderSize {
		return false
	}
	count := binary.LittleEndian.Uint32(data[80:84])
	if int64(len(data)) == int64(binaryHeaderSize)+int64(count)*binaryTriangleSize {
		return true
	}
	return !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid"))
}

func binaryVolume(data []byte) (float64, error) {
	count := binary.LittleEndian.Uint32(data[80:84])
	if count > maxTriangles {
		return 0, fmt.Errorf("%w: triangle count %d exceeds limit", ErrInvalidSTL, count)
	}
	want := int64(binaryHeaderSize) + int64(count)*binaryTriangleSize
	if int64(len(data)) < want {
		return 0, fmt.Errorf("%w: truncated body", ErrInvalidSTL)
	}
	var volume float64
	offset := binaryHeaderSize
	for i := uint32(0); i < count; i++ {
		// 12 bytes of normal vector precede the three vertices; the normal
		// is ignored since the signed volume encodes orientation itself.
		a := readVertex(data[offset+12:])
		b := readVertex(data[offset+24:])
		c := readVertex(data[offset+36:])
		volume += a.dot(b.cross(c))
		offset += binaryTriangleSize
	}
	return math.Abs(volume) / 6 / 1000, nil
}

func readVertex(data []byte) vec3 {
	return vec3{
		X: float64(math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))),
		Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))),
		Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(data[8:12]))),
	}
}

func asciiVolume(data []byte) (float64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		volume    float64
		verts     [3]vec3
		nverts    int
		triangles int
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "vertex") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return 0, fmt.Errorf("%w: malformed vertex line", ErrInvalidSTL)
		}
		var v vec3
		var err error
		if v.X, err = strconv.ParseFloat(fields[1], 64); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidSTL, err)
		}
		if v.Y, err = strconv.ParseFloat(fields[2], 64); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidSTL, err)
		}
		if v.Z, err = strconv.ParseFloat(fields[3], 64); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidSTL, err)
		}
		verts[nverts] = v
		nverts++
		if nverts == 3 {
			volume += verts[0].dot(verts[1].cross(verts[2]))
			nverts = 0
			triangles++
			if triangles > maxTriangles {
				return 0, fmt.Errorf("%w: triangle count exceeds limit", ErrInvalidSTL)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidSTL, err)
	}
	if triangles == 0 {
		return 0, fmt.Errorf("%w: no facets", ErrInvalidSTL)
	}
	if nverts != 0 {
		return 0, fmt.Errorf("%w: dangling vertices", ErrInvalidSTL)
	}
	return math.Abs(volume) / 6 / 1000, nil
}
