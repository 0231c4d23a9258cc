package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromJSONFieldTypes(t *testing.T) {
	now := time.Now()
	rec, err := FromJSON([]byte(`{"active":true,"count":42,"ratio":0.75,"name":"payment","big":1e3}`), now)
	require.NoError(t, err)
	require.Equal(t, "active:bool,big:float,count:int,name:string,ratio:float", rec.Schema.String())
	require.Equal(t, true, rec.Get("active"))
	require.Equal(t, float64(1000), rec.Get("big"))
	require.Equal(t, int64(42), rec.Get("count"))
	require.Equal(t, "payment", rec.Get("name"))
	require.Equal(t, 0.75, rec.Get("ratio"))
	require.Equal(t, now, rec.Timestamp)
}

func TestFromJSONFieldsSorted(t *testing.T) {
	rec1, err := FromJSON([]byte(`{"b":1,"a":2,"c":3}`), time.Now())
	require.NoError(t, err)
	rec2, err := FromJSON([]byte(`{"c":3,"a":2,"b":1}`), time.Now())
	require.NoError(t, err)
	require.True(t, rec1.Schema.Equal(rec2.Schema))
	require.Equal(t, "a:int,b:int,c:int", rec1.Schema.String())
}

func TestFromJSONNullsOmitted(t *testing.T) {
	rec, err := FromJSON([]byte(`{"a":1,"b":null,"c":"x"}`), time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, rec.Schema.NumFields())
	require.Equal(t, -1, rec.Schema.FieldIndex("b"))
	require.Nil(t, rec.Get("b"))
}

func TestFromJSONNested(t *testing.T) {
	rec, err := FromJSON([]byte(`{"id":7,"address":{"city":"macclesfield","country":"uk"},"tags":[1,2,3]}`), time.Now())
	require.NoError(t, err)
	require.Equal(t, "address:string,id:int,tags:string", rec.Schema.String())
	require.Equal(t, `{"city":"macclesfield","country":"uk"}`, rec.Get("address"))
	require.Equal(t, `[1,2,3]`, rec.Get("tags"))
}

func TestFromJSONInvalid(t *testing.T) {
	_, err := FromJSON([]byte(`{"a":`), time.Now())
	require.Error(t, err)
	_, err = FromJSON([]byte(`[1,2,3]`), time.Now())
	require.Error(t, err)
	_, err = FromJSON([]byte(`"just a string"`), time.Now())
	require.Error(t, err)
	_, err = FromJSON([]byte(`23`), time.Now())
	require.Error(t, err)
}

func TestFromJSONRawPreserved(t *testing.T) {
	data := []byte(`{"z":1,"a":{"nested":true}}`)
	rec, err := FromJSON(data, time.Now())
	require.NoError(t, err)
	require.Equal(t, data, rec.Raw)
}

func TestFromBytes(t *testing.T) {
	now := time.Now()
	data := []byte("some opaque bytes")
	rec := FromBytes(data, now)
	require.True(t, rec.Schema.Equal(BytesSchema))
	require.Equal(t, data, rec.Get("value"))
	require.Equal(t, data, rec.Raw)
	require.Equal(t, now, rec.Timestamp)
	// record must not alias the caller's buffer
	data[0] = 'x'
	require.Equal(t, byte('s'), rec.Raw[0])
}

func TestSchemaEqual(t *testing.T) {
	s1 := NewSchema([]Field{{Name: "a", Type: TypeInt}, {Name: "b", Type: TypeString}})
	s2 := NewSchema([]Field{{Name: "a", Type: TypeInt}, {Name: "b", Type: TypeString}})
	s3 := NewSchema([]Field{{Name: "a", Type: TypeFloat}, {Name: "b", Type: TypeString}})
	s4 := NewSchema([]Field{{Name: "a", Type: TypeInt}})
	require.True(t, s1.Equal(s2))
	require.False(t, s1.Equal(s3))
	require.False(t, s1.Equal(s4))
	require.False(t, s1.Equal(nil))
}
