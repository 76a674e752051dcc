package discovery

// SetPoolPicker replaces the pool's random agent choice.
func SetPoolPicker(p *Pool, intn func(int) int) { p.intn = intn }
