package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"

	"github.com/scenediff/scenediff/logging"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

// floats outside this range cannot be stored in a LAS file without losing precision.
const (
	maxPreciseFloat64 = float64(1 << 53)
	minPreciseFloat64 = -maxPreciseFloat64
)

// Viewpoint is the acquisition pose recorded in a PCD header.
type Viewpoint struct {
	Translation r3.Vector
	Orientation quat.Number
}

// DefaultViewpoint is the identity pose PCD writers use when none is known.
func DefaultViewpoint() Viewpoint {
	return Viewpoint{Orientation: quat.Number{Real: 1}}
}

// NewFromFile returns a pointcloud read in from the given file.
func NewFromFile(fn string, logger logging.Logger) (PointCloud, error) {
	switch filepath.Ext(fn) {
	case ".las":
		return NewFromLASFile(fn, logger)
	case ".pcd":
		//nolint:gosec
		f, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		pc, vp, err := DecodePCD(f)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %q", fn)
		}
		logger.Debugw("read pcd file", "file", fn, "points", pc.Size(), "valid", pc.MetaData().ValidCount,
			"width", pc.Width(), "height", pc.Height(), "viewpoint", vp.Translation)
		return pc, nil
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
}

// NewFromLASFile returns a point cloud from reading a LAS file. If any
// lossiness of points could occur from reading it in, it's reported but is not
// an error.
func NewFromLASFile(fn string, logger logging.Logger) (PointCloud, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	pc := NewWithPrealloc(lf.Header.NumberPoints)
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, err
		}
		data := p.PointData()

		x, y, z := data.X, data.Y, data.Z
		if x < minPreciseFloat64 || x > maxPreciseFloat64 ||
			y < minPreciseFloat64 || y > maxPreciseFloat64 ||
			z < minPreciseFloat64 || z > maxPreciseFloat64 {
			logger.Warnw("potential floating point lossiness for LAS point",
				"point", data, "range", fmt.Sprintf("[%f,%f]", minPreciseFloat64, maxPreciseFloat64))
		}

		v := r3.Vector{X: x, Y: y, Z: z}
		var dd Data
		if lf.Header.PointFormatID == 2 && p.RgbData() != nil {
			r := uint8(p.RgbData().Red / 256)
			g := uint8(p.RgbData().Green / 256)
			b := uint8(p.RgbData().Blue / 256)
			dd = NewColoredIntensityData(color.NRGBA{r, g, b, 255}, data.Intensity)
		} else {
			dd = NewIntensityData(data.Intensity)
		}
		pc.Append(v, dd)
	}
	return pc, nil
}

// WriteToLASFile writes the valid points of the cloud out to a LAS file.
func WriteToLASFile(cloud PointCloud, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return
	}
	defer func() {
		cerr := lf.Close()
		err = multierr.Combine(err, cerr)
	}()

	meta := cloud.MetaData()

	pointFormatID := 0
	if meta.HasColor {
		pointFormatID = 2
	}
	if err = lf.AddHeader(lidario.LasHeader{
		PointFormatID: byte(pointFormatID),
	}); err != nil {
		return
	}

	var lastErr error
	cloud.Iterate(0, 0, func(_ int, pos r3.Vector, d Data) bool {
		if !IsValid(pos) {
			return true
		}
		var lp lidario.LasPointer
		pr0 := &lidario.PointRecord0{
			// floating point lossiness validated/warned from set/load
			X: pos.X,
			Y: pos.Y,
			Z: pos.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3) | (0 << 6) | (0 << 7),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			ScanAngle:     0,
			UserData:      0,
			PointSourceID: 1,
		}
		lp = pr0

		if d != nil && d.HasIntensity() {
			pr0.Intensity = d.Intensity()
		}

		if meta.HasColor {
			red, green, blue := 255, 255, 255
			if d != nil && d.HasColor() {
				r, g, b := d.RGB255()
				red, green, blue = int(r), int(g), int(b)
			}
			lp = &lidario.PointRecord2{
				PointRecord0: pr0,
				RGB: &lidario.RgbData{
					Red:   uint16(red * 256),
					Green: uint16(green * 256),
					Blue:  uint16(blue * 256),
				},
			}
		}
		if lerr := lf.AddLasPoint(lp); lerr != nil {
			lastErr = lerr
			return false
		}
		return true
	})
	if lastErr != nil {
		err = lastErr
		return
	}

	// nolint:nakedret
	return
}

func colorToPCDInt(pt Data) uint32 {
	if pt == nil || !pt.HasColor() {
		return 0
	}

	r, g, b := pt.RGB255()
	var x uint32

	x |= (uint32(r) << 16)
	x |= (uint32(g) << 8)
	x |= (uint32(b) << 0)
	return x
}

func pcdIntToColor(c uint32) color.NRGBA {
	r := uint8(0xFF & (c >> 16))
	g := uint8(0xFF & (c >> 8))
	b := uint8(0xFF & (c >> 0))
	return color.NRGBA{r, g, b, 255}
}

// ToPCD writes the cloud in the PCD format. Organized clouds keep their WIDTH and HEIGHT and
// invalid points are written as nan so that index alignment survives a round trip.
func ToPCD(cloud PointCloud, out io.Writer, outputType PCDType) error {
	return EncodePCD(cloud, DefaultViewpoint(), out, outputType)
}

// EncodePCD is ToPCD with an explicit acquisition viewpoint.
func EncodePCD(cloud PointCloud, vp Viewpoint, out io.Writer, outputType PCDType) error {
	meta := cloud.MetaData()
	fields, sizes, types := "x y z", "4 4 4", "F F F"
	counts := "1 1 1"
	if meta.HasColor {
		fields += " rgb"
		sizes += " 4"
		types += " U"
		counts += " 1"
	}
	if meta.HasIntensity {
		fields += " intensity"
		sizes += " 4"
		types += " F"
		counts += " 1"
	}

	var dataLine string
	switch outputType {
	case PCDBinary:
		dataLine = "binary"
	case PCDAscii:
		dataLine = "ascii"
	case PCDCompressed:
		return errors.New("compressed PCD not yet implemented")
	default:
		return errors.Errorf("unknown PCD output type %d", outputType)
	}

	w := bufio.NewWriter(out)
	if _, err := fmt.Fprintf(w, "VERSION .7\n"+
		"FIELDS %s\n"+
		"SIZE %s\n"+
		"TYPE %s\n"+
		"COUNT %s\n"+
		"WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT %s %s %s %s %s %s %s\n"+
		"POINTS %d\n"+
		"DATA %s\n",
		fields, sizes, types, counts,
		cloud.Width(), cloud.Height(),
		formatFloat(vp.Translation.X), formatFloat(vp.Translation.Y), formatFloat(vp.Translation.Z),
		formatFloat(vp.Orientation.Real), formatFloat(vp.Orientation.Imag),
		formatFloat(vp.Orientation.Jmag), formatFloat(vp.Orientation.Kmag),
		cloud.Size(), dataLine,
	); err != nil {
		return err
	}
	if err := writePCDData(cloud, w, outputType); err != nil {
		return err
	}
	return w.Flush()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func writePCDData(cloud PointCloud, out io.Writer, pcdtype PCDType) error {
	meta := cloud.MetaData()
	var err error
	buf := make([]byte, 0, 20)
	cloud.Iterate(0, 0, func(_ int, pos r3.Vector, d Data) bool {
		valid := IsValid(pos)
		switch pcdtype {
		case PCDBinary:
			buf = buf[:0]
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(pos.X)))
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(pos.Y)))
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(pos.Z)))
			if meta.HasColor {
				buf = binary.LittleEndian.AppendUint32(buf, colorToPCDInt(d))
			}
			if meta.HasIntensity {
				var intensity float32
				if d != nil && d.HasIntensity() {
					intensity = float32(d.Intensity())
				}
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(intensity))
			}
			_, err = out.Write(buf)
		case PCDAscii, PCDCompressed:
			var line strings.Builder
			if valid {
				fmt.Fprintf(&line, "%s %s %s", formatFloat(pos.X), formatFloat(pos.Y), formatFloat(pos.Z))
			} else {
				line.WriteString("nan nan nan")
			}
			if meta.HasColor {
				fmt.Fprintf(&line, " %d", colorToPCDInt(d))
			}
			if meta.HasIntensity {
				var intensity uint16
				if d != nil && d.HasIntensity() {
					intensity = d.Intensity()
				}
				fmt.Fprintf(&line, " %d", intensity)
			}
			line.WriteByte('\n')
			_, err = io.WriteString(out, line.String())
		}
		return err == nil
	})
	return err
}

type pcdValType string

const (
	pcdValFloat pcdValType = "F"
	pcdValInt   pcdValType = "I"
	pcdValUInt  pcdValType = "U"
)

type pcdField struct {
	name  string
	size  int
	typ   pcdValType
	count int
}

type pcdHeader struct {
	fields    []pcdField
	width     int
	height    int
	viewpoint Viewpoint
	points    int
	data      PCDType
}

// fieldIndex returns the position of the named field or -1.
func (h *pcdHeader) fieldIndex(name string) int {
	for i, f := range h.fields {
		if f.name == name {
			return i
		}
	}
	return -1
}

const pcdCommentChar = "#"

func parsePCDHeaderLine(line string, header *pcdHeader) (bool, error) {
	name, value, _ := strings.Cut(line, " ")
	value = strings.TrimSpace(value)
	tokens := strings.Fields(value)

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return false, errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		header.fields = make([]pcdField, len(tokens))
		for i, token := range tokens {
			header.fields[i] = pcdField{name: token, size: 4, typ: pcdValFloat, count: 1}
		}
	case "SIZE":
		if len(tokens) != len(header.fields) {
			return false, errors.New("unexpected number of fields in SIZE line")
		}
		for i, token := range tokens {
			size, err := strconv.Atoi(token)
			if err != nil || (size != 1 && size != 2 && size != 4 && size != 8) {
				return false, errors.Errorf("invalid SIZE field %s", token)
			}
			header.fields[i].size = size
		}
	case "TYPE":
		if len(tokens) != len(header.fields) {
			return false, errors.New("unexpected number of fields in TYPE line")
		}
		for i, token := range tokens {
			typ := pcdValType(token)
			if typ != pcdValFloat && typ != pcdValInt && typ != pcdValUInt {
				return false, errors.Errorf("invalid TYPE field %s", token)
			}
			header.fields[i].typ = typ
		}
	case "COUNT":
		if len(tokens) != len(header.fields) {
			return false, errors.New("unexpected number of fields in COUNT line")
		}
		for i, token := range tokens {
			count, err := strconv.Atoi(token)
			if err != nil || count < 1 {
				return false, errors.Errorf("invalid COUNT field %s", token)
			}
			header.fields[i].count = count
		}
	case "WIDTH":
		width, err := strconv.Atoi(value)
		if err != nil || width < 0 {
			return false, errors.Errorf("invalid WIDTH field %s", value)
		}
		header.width = width
	case "HEIGHT":
		height, err := strconv.Atoi(value)
		if err != nil || height < 1 {
			return false, errors.Errorf("invalid HEIGHT field %s", value)
		}
		header.height = height
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return false, errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		viewpoint := [7]float64{}
		for i, token := range tokens {
			var err error
			viewpoint[i], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return false, errors.Errorf("invalid VIEWPOINT field %s: %s", token, err)
			}
		}
		header.viewpoint = Viewpoint{
			Translation: r3.Vector{X: viewpoint[0], Y: viewpoint[1], Z: viewpoint[2]},
			Orientation: quat.Number{Real: viewpoint[3], Imag: viewpoint[4], Jmag: viewpoint[5], Kmag: viewpoint[6]},
		}
	case "POINTS":
		points, err := strconv.Atoi(value)
		if err != nil || points < 0 {
			return false, errors.Errorf("invalid POINTS field %s", value)
		}
		header.points = points
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return false, errors.Errorf("unsupported pcd data type %s", value)
		}
		return true, nil
	default:
		return false, errors.Errorf("unknown pcd header line %q", line)
	}
	return false, nil
}

// ReadPCD reads a cloud in the PCD format.
func ReadPCD(inRaw io.Reader) (PointCloud, error) {
	pc, _, err := DecodePCD(inRaw)
	return pc, err
}

// DecodePCD reads a cloud in the PCD format along with the viewpoint from its header.
func DecodePCD(inRaw io.Reader) (PointCloud, Viewpoint, error) {
	header := pcdHeader{height: 1, viewpoint: DefaultViewpoint(), points: -1}
	in := bufio.NewReader(inRaw)
	for lineNum := 0; ; lineNum++ {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, Viewpoint{}, errors.Errorf("error reading header line %d: %s", lineNum, err)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		done, err := parsePCDHeaderLine(line, &header)
		if err != nil {
			return nil, Viewpoint{}, err
		}
		if done {
			break
		}
	}
	if err := header.validate(); err != nil {
		return nil, Viewpoint{}, err
	}

	var pc PointCloud
	var err error
	switch header.data {
	case PCDAscii:
		pc, err = readPCDAscii(in, header)
	case PCDBinary:
		pc, err = readPCDBinary(in, header)
	case PCDCompressed:
		err = errors.New("compressed pcd not yet supported")
	default:
		err = errors.Errorf("unsupported pcd data type %v", header.data)
	}
	if err != nil {
		return nil, Viewpoint{}, err
	}
	return pc, header.viewpoint, nil
}

func (h *pcdHeader) validate() error {
	for _, axis := range []string{"x", "y", "z"} {
		if h.fieldIndex(axis) < 0 {
			return errors.Errorf("pcd FIELDS is missing %s", axis)
		}
	}
	if h.points < 0 {
		h.points = h.width * h.height
	}
	if h.points != h.width*h.height {
		return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", h.points, h.width*h.height)
	}
	return nil
}

func newCloudForHeader(header pcdHeader) PointCloud {
	if header.height > 1 {
		return NewOrganized(header.width, header.height)
	}
	return NewWithPrealloc(header.points)
}

// pcdValue is a single decoded field value. raw keeps the bit pattern for packed colors.
type pcdValue struct {
	f   float64
	raw uint32
}

func readPCDAscii(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	pc := newCloudForHeader(header)
	width := 0
	for _, f := range header.fields {
		width += f.count
	}
	for i := 0; i < header.points; i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != width {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		values := make([]pcdValue, len(header.fields))
		pos := 0
		for j, f := range header.fields {
			// only the first element of multi-count fields is used
			values[j], err = parseASCIIValue(tokens[pos], f)
			if err != nil {
				return nil, errors.Errorf("invalid point %d field %s: %s", i, tokens[pos], err)
			}
			pos += f.count
		}
		p, data := valuesToPoint(values, header)
		pc.Append(p, data)
	}
	return pc, nil
}

func parseASCIIValue(token string, f pcdField) (pcdValue, error) {
	if f.typ == pcdValFloat {
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return pcdValue{}, err
		}
		return pcdValue{f: v, raw: math.Float32bits(float32(v))}, nil
	}
	if f.typ == pcdValInt {
		v, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return pcdValue{}, err
		}
		return pcdValue{f: float64(v), raw: uint32(v)}, nil
	}
	v, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return pcdValue{}, err
	}
	return pcdValue{f: float64(v), raw: uint32(v)}, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	pc := newCloudForHeader(header)
	stride := 0
	for _, f := range header.fields {
		stride += f.size * f.count
	}
	buf := make([]byte, stride)
	values := make([]pcdValue, len(header.fields))
	for i := 0; i < header.points; i++ {
		if _, err := io.ReadFull(in, buf); err != nil {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		offset := 0
		for j, f := range header.fields {
			values[j] = decodeBinaryValue(buf[offset:offset+f.size], f)
			offset += f.size * f.count
		}
		p, data := valuesToPoint(values, header)
		pc.Append(p, data)
	}
	return pc, nil
}

func decodeBinaryValue(b []byte, f pcdField) pcdValue {
	switch f.typ {
	case pcdValFloat:
		if f.size == 8 {
			v := math.Float64frombits(binary.LittleEndian.Uint64(b))
			return pcdValue{f: v, raw: math.Float32bits(float32(v))}
		}
		bits := binary.LittleEndian.Uint32(b)
		return pcdValue{f: float64(math.Float32frombits(bits)), raw: bits}
	case pcdValInt:
		var v int64
		switch f.size {
		case 1:
			v = int64(int8(b[0]))
		case 2:
			v = int64(int16(binary.LittleEndian.Uint16(b)))
		case 4:
			v = int64(int32(binary.LittleEndian.Uint32(b)))
		default:
			v = int64(binary.LittleEndian.Uint64(b))
		}
		return pcdValue{f: float64(v), raw: uint32(v)}
	default:
		var v uint64
		switch f.size {
		case 1:
			v = uint64(b[0])
		case 2:
			v = uint64(binary.LittleEndian.Uint16(b))
		case 4:
			v = uint64(binary.LittleEndian.Uint32(b))
		default:
			v = binary.LittleEndian.Uint64(b)
		}
		return pcdValue{f: float64(v), raw: uint32(v)}
	}
}

func valuesToPoint(values []pcdValue, header pcdHeader) (r3.Vector, Data) {
	pos := r3.Vector{
		X: values[header.fieldIndex("x")].f,
		Y: values[header.fieldIndex("y")].f,
		Z: values[header.fieldIndex("z")].f,
	}
	if !IsValid(pos) {
		return InvalidVector(), nil
	}

	colorIdx := header.fieldIndex("rgb")
	if colorIdx < 0 {
		colorIdx = header.fieldIndex("rgba")
	}
	intensityIdx := header.fieldIndex("intensity")

	switch {
	case colorIdx >= 0 && intensityIdx >= 0:
		return pos, NewColoredIntensityData(pcdIntToColor(values[colorIdx].raw), clampIntensity(values[intensityIdx].f))
	case colorIdx >= 0:
		return pos, NewColoredData(pcdIntToColor(values[colorIdx].raw))
	case intensityIdx >= 0:
		return pos, NewIntensityData(clampIntensity(values[intensityIdx].f))
	default:
		return pos, NewBasicData()
	}
}

func clampIntensity(v float64) uint16 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(math.Round(v))
}
