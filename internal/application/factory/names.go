package factory

import (
	"fmt"

	"github.com/andrescamacho/carfactory-go/internal/application/actor"
	"github.com/andrescamacho/carfactory-go/internal/domain/parts"
)

func typeName(v interface{}) string {
	return fmt.Sprintf("%T", v)
}

func kindNames(kinds []parts.Kind) []string {
	names := make([]string, len(kinds))
	for i, kind := range kinds {
		names[i] = string(kind)
	}
	return names
}

func lineName(ref actor.Ref[LineMessage]) string {
	if ref == nil {
		return ""
	}
	return ref.Name()
}
