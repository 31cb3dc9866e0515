package dbfacade

import "testing"

func TestPoolSizeOrDefault(t *testing.T) {
	cases := []struct {
		name                          string
		configured, serving, script   int
		want                          int
	}{
		{"configured wins", 20, 4, 1, 20},
		{"unset sums serving and script", 0, 4, 1, 5},
		{"unset with zero threads", 0, 0, 0, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := PoolSizeOrDefault(c.configured, c.serving, c.script)
			if got != c.want {
				t.Fatalf("got %d, want %d", got, c.want)
			}
		})
	}
}
