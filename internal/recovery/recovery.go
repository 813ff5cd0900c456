// Package recovery builds and applies Reed-Solomon parity sidecars for
// multi-volume archive sets. A sidecar stores parity only; the data
// shards are the volumes themselves, laid end to end.
package recovery

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/klauspost/reedsolomon"
	"github.com/pkg/errors"
	"github.com/remeh/sizedwaitgroup"

	"goxr/internal/checksum"
)

const (
	sidecarMagic   = "GXRV"
	sidecarVersion = 1

	DefaultDataShards   = 10
	DefaultParityShards = 3
)

var (
	ErrBadSidecar  = errors.New("invalid recovery sidecar")
	ErrTooDamaged  = errors.New("too many damaged volumes to reconstruct")
	ErrNothingToDo = errors.New("all volumes intact")
)

type volume struct {
	name string
	size int64
	sum  [32]byte
}

type sidecar struct {
	dataShards   int
	parityShards int
	shardSize    int
	volumes      []volume
	shardSums    []uint64
	parity       [][]byte
}

// Create reads volumes in order and writes a parity sidecar to revPath.
// Volume names are stored relative to the sidecar's directory.
func Create(revPath string, volumes []string, parityShards int) error {
	if len(volumes) == 0 {
		return errors.New("recovery: no volumes")
	}
	if parityShards <= 0 {
		parityShards = DefaultParityShards
	}
	dataShards := DefaultDataShards
	if len(volumes) > dataShards {
		dataShards = len(volumes)
	}

	contents, err := readVolumes(volumes)
	if err != nil {
		return err
	}
	sc := &sidecar{dataShards: dataShards, parityShards: parityShards}
	var joined []byte
	for i, p := range volumes {
		if contents[i] == nil {
			return errors.Wrapf(os.ErrNotExist, "recovery: volume %v", p)
		}
		sc.volumes = append(sc.volumes, volume{
			name: filepath.Base(p),
			size: int64(len(contents[i])),
			sum:  checksum.Blake3(contents[i]),
		})
		joined = append(joined, contents[i]...)
	}
	if len(joined) == 0 {
		return errors.New("recovery: volumes are empty")
	}

	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return err
	}
	shards, err := enc.Split(joined)
	if err != nil {
		return err
	}
	if err := enc.Encode(shards); err != nil {
		return err
	}
	sc.shardSize = len(shards[0])
	for _, s := range shards {
		sc.shardSums = append(sc.shardSums, checksum.XXH3(s))
	}
	sc.parity = shards[dataShards:]

	out, err := os.Create(revPath)
	if err != nil {
		return err
	}
	if err := sc.write(out); err != nil {
		out.Close()
		os.Remove(revPath)
		return err
	}
	return out.Close()
}

// Reconstruct rewrites every missing or damaged volume listed in the
// sidecar at revPath and returns their paths.
func Reconstruct(revPath string) ([]string, error) {
	f, err := os.Open(revPath)
	if err != nil {
		return nil, err
	}
	sc, err := readSidecar(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(revPath)
	paths := make([]string, len(sc.volumes))
	for i, v := range sc.volumes {
		paths[i] = filepath.Join(dir, v.name)
	}
	contents, err := readVolumes(paths)
	if err != nil {
		return nil, err
	}

	var damaged []int
	var joined []byte
	for i, v := range sc.volumes {
		c := contents[i]
		if c == nil || int64(len(c)) != v.size || checksum.Blake3(c) != v.sum {
			damaged = append(damaged, i)
			c = make([]byte, v.size)
		}
		joined = append(joined, c...)
	}
	if len(damaged) == 0 {
		return nil, ErrNothingToDo
	}

	total := sc.dataShards + sc.parityShards
	shards := make([][]byte, total)
	padded := make([]byte, sc.dataShards*sc.shardSize)
	copy(padded, joined)
	for i := 0; i < sc.dataShards; i++ {
		shards[i] = padded[i*sc.shardSize : (i+1)*sc.shardSize]
	}
	copy(shards[sc.dataShards:], sc.parity)

	missing := 0
	for i, s := range shards {
		if checksum.XXH3(s) != sc.shardSums[i] {
			shards[i] = nil
			missing++
		}
	}
	if missing > sc.parityShards {
		return nil, errors.Wrapf(ErrTooDamaged, "%d of %d shards lost", missing, total)
	}

	enc, err := reedsolomon.New(sc.dataShards, sc.parityShards)
	if err != nil {
		return nil, err
	}
	if err := enc.ReconstructData(shards); err != nil {
		return nil, errors.Wrap(ErrTooDamaged, err.Error())
	}
	var buf bytes.Buffer
	if err := enc.Join(&buf, shards, len(joined)); err != nil {
		return nil, err
	}
	data := buf.Bytes()

	var repaired []string
	var off int64
	for i, v := range sc.volumes {
		part := data[off : off+v.size]
		off += v.size
		if !containsIndex(damaged, i) {
			continue
		}
		if checksum.Blake3(part) != v.sum {
			return repaired, errors.Wrapf(ErrTooDamaged, "volume %v failed verification", v.name)
		}
		if err := os.WriteFile(paths[i], part, 0o644); err != nil {
			return repaired, err
		}
		repaired = append(repaired, paths[i])
	}
	return repaired, nil
}

func containsIndex(list []int, i int) bool {
	for _, v := range list {
		if v == i {
			return true
		}
	}
	return false
}

// readVolumes loads every path concurrently. Missing files come back as
// nil without error.
func readVolumes(paths []string) ([][]byte, error) {
	contents := make([][]byte, len(paths))
	errs := make([]error, len(paths))
	wg := sizedwaitgroup.New(runtime.NumCPU())
	for i := range paths {
		wg.Add()
		go func(i int) {
			defer wg.Done()
			b, err := os.ReadFile(paths[i])
			if err != nil && !os.IsNotExist(err) {
				errs[i] = err
				return
			}
			contents[i] = b
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return contents, nil
}

func (sc *sidecar) header() []byte {
	var b bytes.Buffer
	b.WriteString(sidecarMagic)
	b.WriteByte(sidecarVersion)
	b.WriteByte(uint8(sc.dataShards))
	b.WriteByte(uint8(sc.parityShards))
	binary.Write(&b, binary.LittleEndian, uint32(sc.shardSize))
	binary.Write(&b, binary.LittleEndian, uint16(len(sc.volumes)))
	for _, v := range sc.volumes {
		binary.Write(&b, binary.LittleEndian, uint16(len(v.name)))
		b.WriteString(v.name)
		binary.Write(&b, binary.LittleEndian, uint64(v.size))
		b.Write(v.sum[:])
	}
	for _, s := range sc.shardSums {
		binary.Write(&b, binary.LittleEndian, s)
	}
	return b.Bytes()
}

func (sc *sidecar) write(w io.Writer) error {
	hdr := sc.header()
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, checksum.CRC16(hdr)); err != nil {
		return err
	}
	for _, s := range sc.parity {
		if _, err := w.Write(s); err != nil {
			return err
		}
	}
	return nil
}

func readSidecar(r io.Reader) (*sidecar, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	br := bytes.NewReader(raw)
	magic := make([]byte, len(sidecarMagic))
	if _, err := io.ReadFull(br, magic); err != nil || string(magic) != sidecarMagic {
		return nil, ErrBadSidecar
	}
	var fixed struct {
		Version      uint8
		DataShards   uint8
		ParityShards uint8
		ShardSize    uint32
		Volumes      uint16
	}
	if err := binary.Read(br, binary.LittleEndian, &fixed); err != nil {
		return nil, errors.Wrap(ErrBadSidecar, err.Error())
	}
	if fixed.Version != sidecarVersion || fixed.DataShards == 0 || fixed.ParityShards == 0 {
		return nil, errors.Wrap(ErrBadSidecar, "unsupported layout")
	}
	sc := &sidecar{
		dataShards:   int(fixed.DataShards),
		parityShards: int(fixed.ParityShards),
		shardSize:    int(fixed.ShardSize),
	}
	for i := 0; i < int(fixed.Volumes); i++ {
		var n uint16
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, errors.Wrap(ErrBadSidecar, err.Error())
		}
		name := make([]byte, n)
		if _, err := io.ReadFull(br, name); err != nil {
			return nil, errors.Wrap(ErrBadSidecar, err.Error())
		}
		v := volume{name: filepath.Base(string(name))}
		var size uint64
		if err := binary.Read(br, binary.LittleEndian, &size); err != nil {
			return nil, errors.Wrap(ErrBadSidecar, err.Error())
		}
		v.size = int64(size)
		if _, err := io.ReadFull(br, v.sum[:]); err != nil {
			return nil, errors.Wrap(ErrBadSidecar, err.Error())
		}
		sc.volumes = append(sc.volumes, v)
	}
	sc.shardSums = make([]uint64, sc.dataShards+sc.parityShards)
	if err := binary.Read(br, binary.LittleEndian, sc.shardSums); err != nil {
		return nil, errors.Wrap(ErrBadSidecar, err.Error())
	}
	hdrLen := len(raw) - br.Len()
	var crc uint16
	if err := binary.Read(br, binary.LittleEndian, &crc); err != nil {
		return nil, errors.Wrap(ErrBadSidecar, err.Error())
	}
	if crc != checksum.CRC16(raw[:hdrLen]) {
		return nil, errors.Wrap(ErrBadSidecar, "header checksum mismatch")
	}
	for i := 0; i < sc.parityShards; i++ {
		s := make([]byte, sc.shardSize)
		if _, err := io.ReadFull(br, s); err != nil {
			return nil, errors.Wrap(ErrBadSidecar, "truncated parity")
		}
		sc.parity = append(sc.parity, s)
	}
	return sc, nil
}
