package persist

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz/lzma"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/i5heu/ouroboros-cad/pkg/model"
	"github.com/i5heu/ouroboros-cad/pkg/types"
)

const formatVersion = 1

const (
	prefixDoc    = "doc:"
	keyHeader    = prefixDoc + "header"
	prefixObject = prefixDoc + "obj:"
)

func objectKey(h types.Handle) []byte {
	return []byte(fmt.Sprintf("%s%016x", prefixObject, uint64(h)))
}

type header struct {
	documentID    uuid.UUID
	currentBlock  types.ObjectID
	maxObjectID   types.ObjectID
	handleCounter types.Handle
	savedAt       time.Time
	objects       int
}

func encodeHeader(h header) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]interface{}{
		"format":        float64(formatVersion),
		"documentId":    h.documentID.String(),
		"currentBlock":  float64(h.currentBlock),
		"maxObjectId":   float64(h.maxObjectID),
		"handleCounter": fmt.Sprintf("%x", uint64(h.handleCounter)),
		"savedAt":       h.savedAt.UTC().Format(time.RFC3339Nano),
		"objects":       float64(h.objects),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func decodeHeader(data []byte) (header, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return header{}, err
	}
	f := st.GetFields()

	if v := int(f["format"].GetNumberValue()); v != formatVersion {
		return header{}, fmt.Errorf("unsupported snapshot format %d", v)
	}
	id, err := uuid.Parse(f["documentId"].GetStringValue())
	if err != nil {
		return header{}, fmt.Errorf("document id: %w", err)
	}
	var counter uint64
	if _, err := fmt.Sscanf(f["handleCounter"].GetStringValue(), "%x", &counter); err != nil {
		return header{}, fmt.Errorf("handle counter: %w", err)
	}
	savedAt, err := time.Parse(time.RFC3339Nano, f["savedAt"].GetStringValue())
	if err != nil {
		return header{}, fmt.Errorf("saved at: %w", err)
	}
	return header{
		documentID:    id,
		currentBlock:  types.ObjectID(f["currentBlock"].GetNumberValue()),
		maxObjectID:   types.ObjectID(f["maxObjectId"].GetNumberValue()),
		handleCounter: types.Handle(counter),
		savedAt:       savedAt,
		objects:       int(f["objects"].GetNumberValue()),
	}, nil
}

// encodeObject gob encodes obj and compresses the result with lzma.
func encodeObject(obj *model.Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(obj); err != nil {
		return nil, err
	}
	return compressWithLzma(buf.Bytes())
}

func decodeObject(data []byte) (*model.Object, error) {
	raw, err := decompressWithLzma(data)
	if err != nil {
		return nil, err
	}
	var obj model.Object
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

func compressWithLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(data); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressWithLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err = buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
