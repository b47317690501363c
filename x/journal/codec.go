package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"google.golang.org/protobuf/proto"
)

// DefaultMaxFrameSize bounds a single encoded event.
const DefaultMaxFrameSize = 1 << 20

var ErrEmptyFrame = errors.New("empty frame")

// Codec writes protobuf messages as frames prefixed with a big-endian
// uint32 length.
type Codec struct {
	maxFrameSize int
	scratchPool  sync.Pool
}

// NewCodec returns a codec rejecting frames larger than maxFrameSize bytes.
func NewCodec(maxFrameSize int) *Codec {
	if maxFrameSize <= 0 || maxFrameSize > math.MaxUint32 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Codec{
		maxFrameSize: maxFrameSize,
		scratchPool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, 4096)
				return &buf
			},
		},
	}
}

// Encode marshals msg with its length prefix.
func (c *Codec) Encode(msg proto.Message) ([]byte, error) {
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(data) > c.maxFrameSize {
		return nil, fmt.Errorf("frame size %d exceeds max %d", len(data), c.maxFrameSize)
	}

	out := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(out[:4], uint32(len(data)))
	copy(out[4:], data)
	return out, nil
}

// Decode unmarshals the first frame in data into msg and returns the number
// of bytes consumed.
func (c *Codec) Decode(data []byte, msg proto.Message) (int, error) {
	if len(data) < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	length := int(binary.BigEndian.Uint32(data[:4]))
	if length == 0 {
		return 0, ErrEmptyFrame
	}
	if length > c.maxFrameSize {
		return 0, fmt.Errorf("frame size %d exceeds max %d", length, c.maxFrameSize)
	}
	if len(data) < 4+length {
		return 0, io.ErrUnexpectedEOF
	}
	if err := proto.Unmarshal(data[4:4+length], msg); err != nil {
		return 0, err
	}
	return 4 + length, nil
}

// DecodeStream reads one frame from r. A clean end of stream returns io.EOF;
// a frame cut short returns io.ErrUnexpectedEOF.
func (c *Codec) DecodeStream(r io.Reader, msg proto.Message) (int, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}

	length := int(binary.BigEndian.Uint32(prefix[:]))
	if length == 0 {
		return 0, ErrEmptyFrame
	}
	if length > c.maxFrameSize {
		return 0, fmt.Errorf("frame size %d exceeds max %d", length, c.maxFrameSize)
	}

	scratchPtr := c.scratchPool.Get().(*[]byte)
	defer c.scratchPool.Put(scratchPtr)

	var data []byte
	if length <= len(*scratchPtr) {
		data = (*scratchPtr)[:length]
	} else {
		data = make([]byte, length)
	}

	if _, err := io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	if err := proto.Unmarshal(data, msg); err != nil {
		return 0, err
	}
	return 4 + length, nil
}

// EncodeStream writes msg as one frame to w.
func (c *Codec) EncodeStream(w io.Writer, msg proto.Message) error {
	data, err := c.Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
