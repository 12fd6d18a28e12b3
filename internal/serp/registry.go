package serp

import (
	"fmt"
	"slices"
)

var constructors = map[string]func(...Option) (Engine, error){
	bingName:       func(o ...Option) (Engine, error) { return engineOrNil(NewBing(o...)) },
	braveName:      func(o ...Option) (Engine, error) { return engineOrNil(NewBrave(o...)) },
	duckDuckGoName: func(o ...Option) (Engine, error) { return engineOrNil(NewDuckDuckGo(o...)) },
	libreXName:     func(o ...Option) (Engine, error) { return engineOrNil(NewLibreX(o...)) },
	startpageName:  func(o ...Option) (Engine, error) { return engineOrNil(NewStartpage(o...)) },
}

// engineOrNil returns an untyped nil Engine when err is set.
func engineOrNil[E Engine](e E, err error) (Engine, error) {
	if err != nil {
		return nil, err
	}
	return e, nil
}

// New constructs the adapter registered under name.
func New(name string, opts ...Option) (Engine, error) {
	fn, ok := constructors[name]
	if !ok {
		return nil, newError(name, KindConfiguration, fmt.Errorf("unknown engine %q", name))
	}
	return fn(opts...)
}

// Names returns the supported engine names in sorted order.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
