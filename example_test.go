package arenamap_test

import (
	"fmt"
	"log"

	"github.com/hupe1980/arenamap"
	"github.com/hupe1980/arenamap/serializer"
)

func Example() {
	m, err := arenamap.StringKeys[string](serializer.String{}).
		Capacity(64 << 20).
		Build()
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	if err := m.Put("greeting", "hello off-heap world"); err != nil {
		log.Fatal(err)
	}

	v, found, err := m.Get("greeting")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(found, v)
	// Output:
	// true hello off-heap world
}

func ExampleMap_Iterator() {
	m, err := arenamap.Uint64Keys[string](serializer.String{}).
		Capacity(64 << 20).
		Build()
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	for k, v := range map[uint64]string{3: "three", 1: "one", 2: "two", 4: "four"} {
		if err := m.Put(k, v); err != nil {
			log.Fatal(err)
		}
	}

	it := m.Iterator(arenamap.From(uint64(2)), arenamap.To(uint64(3)))
	defer it.Close()

	for it.Next() {
		fmt.Println(it.Key(), it.Value())
	}
	if err := it.Err(); err != nil {
		log.Fatal(err)
	}
	// Output:
	// 2 two
	// 3 three
}

func ExampleMap_ComputeIfPresent() {
	m, err := arenamap.StringKeys[string](serializer.String{}).
		Capacity(64 << 20).
		Build()
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	if err := m.Put("counter", "x"); err != nil {
		log.Fatal(err)
	}

	applied, err := m.ComputeIfPresent("counter", func(v []byte) []byte {
		return append(v, 'x')
	})
	if err != nil {
		log.Fatal(err)
	}

	v, _, err := m.Get("counter")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(applied, v)
	// Output:
	// true xx
}
