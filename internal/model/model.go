// Package model holds the structure types compiled into the binary.
package model

import "github.com/streamkit/http-source/internal/domain/structure"

// Address is the nested part of Person.
type Address struct {
	City string `json:"city"`
}

// Person is a sample structure with nested validation.
type Person struct {
	Firstname string   `json:"firstname"`
	Lastname  string   `json:"lastname"`
	Age       int      `json:"age"`
	Address   *Address `json:"address"`
}

// Car is a structure with no constraints.
type Car struct {
	Brand string `json:"brand"`
	Model string `json:"model"`
}

// PersonType describes Person and its constraints.
func PersonType() *structure.Type {
	return &structure.Type{
		Name: "person",
		New:  func() any { return &Person{} },
		Shapes: []structure.Shape{
			{
				Sample: Person{},
				Constraints: []structure.Constraint{
					{Field: "Firstname", Rule: structure.NotEmpty},
					{Field: "Lastname", Rule: structure.NotEmpty},
					{Field: "Age", Rule: structure.Min, Min: 18},
					{Field: "Address", Rule: structure.Required},
					{Field: "Address", Rule: structure.Valid},
				},
			},
			{
				Sample: Address{},
				Constraints: []structure.Constraint{
					{Field: "City", Rule: structure.NotEmpty},
				},
			},
		},
	}
}

// CarType describes Car.
func CarType() *structure.Type {
	return &structure.Type{
		Name: "car",
		New:  func() any { return &Car{} },
	}
}

// Register adds every built-in structure type to reg.
func Register(reg *structure.Registry) error {
	for _, t := range []*structure.Type{PersonType(), CarType()} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry with the built-in types.
func NewRegistry() *structure.Registry {
	reg := structure.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}
