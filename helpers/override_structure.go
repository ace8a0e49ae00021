package helpers

import "reflect"

// OverrideStructure copies non-zero fields of override into target.
// Both must be pointers to the same struct type. Nested structs are skipped.
func OverrideStructure(target interface{}, override interface{}) {
	t := reflect.ValueOf(target).Elem()
	o := reflect.ValueOf(override).Elem()
	numField := o.NumField()
	for i := 0; i < numField; i++ {
		v := t.Field(i)
		switch v.Kind() {
		case reflect.Struct:
		default:
			if !o.Field(i).IsZero() && v.CanSet() {
				v.Set(o.Field(i))
			}
		}
	}
}
