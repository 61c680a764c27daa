package art

import "fmt"

func errInvalidLevel(got, want int) error {
	return fmt.Errorf("art: node at level %d, expected %d", got, want)
}

func errEmptyNode() error {
	return fmt.Errorf("art: node has no children")
}

func errOverCapacity(count, capacity int) error {
	return fmt.Errorf("art: node holds %d children, capacity %d", count, capacity)
}
