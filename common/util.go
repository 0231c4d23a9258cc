package common

import (
	"strconv"
)

func ByteSliceCopy(byteSlice []byte) []byte {
	copied := make([]byte, len(byteSlice))
	copy(copied, byteSlice)
	return copied
}

func GetOrDefaultIntProperty(propName string, props map[string]string, def int) (int, error) {
	sProp, ok := props[propName]
	if !ok {
		return def, nil
	}
	prop, err := strconv.Atoi(sProp)
	if err != nil {
		return 0, NewStrataErrorf(InvalidConfiguration, "invalid value for property %s: %s", propName, sProp)
	}
	return prop, nil
}
