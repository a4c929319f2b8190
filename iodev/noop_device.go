package iodev

// NoopBus is a floating bus: reads return 0 and writes go nowhere.
type NoopBus struct{}

func (NoopBus) In(port uint64, data []byte) error {
	for i := range data {
		data[i] = 0
	}

	return nil
}

func (NoopBus) Out(port uint64, data []byte) error {
	return nil
}
