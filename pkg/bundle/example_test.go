package bundle_test

import (
	"context"
	"fmt"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/bundle"
)

var (
	employeeName    = bundle.String("name").Mandatory()
	employeeManager = bundle.Ref("manager")
)

type Employee struct {
	Name    string
	Manager *Employee

	managerRef bundle.EntityReference
}

func (e *Employee) EntityTypeName() bundle.EntityTypeName { return "Employee" }

func (e *Employee) BundleSelf(p *bundle.Packer) (*bundle.Bundle, error) {
	b := p.NewBuilder("Employee", 1)
	employeeName.Put(b, e.Name)
	employeeManager.Put(b, e.Manager)
	return b.Build()
}

func (e *Employee) FinishUnpacking(r bundle.Resolver) bool {
	var err error
	e.Manager, err = bundle.ResolveAs[*Employee](r, e.managerRef)
	return err == nil
}

func init() {
	bundle.MustRegister("Employee", bundle.Factory{
		Oldest: 1,
		Newest: 1,
		Construct: func(b *bundle.Bundle) (bundle.Entity, error) {
			name, err := employeeName.Get(b)
			if err != nil {
				return nil, err
			}
			manager, err := employeeManager.Get(b)
			if err != nil {
				return nil, err
			}
			return &Employee{Name: name, managerRef: manager}, nil
		},
	})
}

func Example() {
	ctx := context.Background()

	// 老板是自己的上级，形成一个环。
	boss := &Employee{Name: "boss"}
	boss.Manager = boss
	worker := &Employee{Name: "worker", Manager: boss}

	stream, err := bundle.Pack(ctx, worker)
	if err != nil {
		panic(err)
	}
	for _, rec := range stream {
		fmt.Println(rec.ID, rec.Bundle.TypeName(), rec.Bundle.References())
	}

	got, err := bundle.UnpackAs[*Employee](ctx, stream)
	if err != nil {
		panic(err)
	}
	fmt.Println(got.Name, "->", got.Manager.Name, got.Manager.Manager == got.Manager)

	// Output:
	// 1 Employee [Employee#2]
	// 2 Employee [Employee#2]
	// worker -> boss true
}
