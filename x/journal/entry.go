package journal

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/compose-network/harberger/x/ledger"
)

// Frame field names. Integers are carried as strings since structpb numbers
// are float64.
const (
	fieldID     = "id"
	fieldSeq    = "seq"
	fieldKind   = "kind"
	fieldSlot   = "slot_id"
	fieldTime   = "time"
	fieldAttrs  = "attrs"
	timeEncoder = time.RFC3339Nano
)

func toFrame(ev ledger.Event) (*structpb.Struct, error) {
	attrs := make(map[string]interface{}, len(ev.Attrs))
	for k, v := range ev.Attrs {
		attrs[k] = v
	}
	return structpb.NewStruct(map[string]interface{}{
		fieldID:    ev.ID.String(),
		fieldSeq:   strconv.FormatUint(ev.Seq, 10),
		fieldKind:  string(ev.Kind),
		fieldSlot:  strconv.FormatUint(uint64(ev.SlotID), 10),
		fieldTime:  ev.Time.UTC().Format(timeEncoder),
		fieldAttrs: attrs,
	})
}

func fromFrame(s *structpb.Struct) (ledger.Event, error) {
	f := s.GetFields()
	str := func(name string) string { return f[name].GetStringValue() }

	id, err := uuid.Parse(str(fieldID))
	if err != nil {
		return ledger.Event{}, fmt.Errorf("event id: %w", err)
	}
	seq, err := strconv.ParseUint(str(fieldSeq), 10, 64)
	if err != nil {
		return ledger.Event{}, fmt.Errorf("event seq: %w", err)
	}
	slot, err := strconv.ParseUint(str(fieldSlot), 10, 64)
	if err != nil {
		return ledger.Event{}, fmt.Errorf("event slot: %w", err)
	}
	at, err := time.Parse(timeEncoder, str(fieldTime))
	if err != nil {
		return ledger.Event{}, fmt.Errorf("event time: %w", err)
	}

	var attrs map[string]string
	if raw := f[fieldAttrs].GetStructValue(); raw != nil {
		attrs = make(map[string]string, len(raw.GetFields()))
		for k, v := range raw.GetFields() {
			attrs[k] = v.GetStringValue()
		}
	}

	return ledger.Event{
		ID:     id,
		Seq:    seq,
		Kind:   ledger.EventKind(str(fieldKind)),
		SlotID: ledger.SlotID(slot),
		Time:   at.UTC(),
		Attrs:  attrs,
	}, nil
}
