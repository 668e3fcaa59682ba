package mappings

// ScatterStyle is the look of one algorithm's series.
type ScatterStyle struct {
	Color string
	Mark  string
	Fill  bool
}

// AlgorithmStyles holds one entry per marker shape; series beyond the last
// shape wrap around.
var AlgorithmStyles = []ScatterStyle{
	{Color: "blue", Mark: "*", Fill: true},
	{Color: "red", Mark: "triangle*", Fill: true},
	{Color: "green!60!black", Mark: "square*", Fill: true},
	{Color: "orange", Mark: "+", Fill: false},
	{Color: "purple", Mark: "star", Fill: false},
	{Color: "cyan", Mark: "pentagon*", Fill: true},
	{Color: "magenta", Mark: "x", Fill: false},
}

func GetAlgorithmStyle(algorithmIndex int) ScatterStyle {
	if algorithmIndex < 0 {
		algorithmIndex = 0
	}
	return AlgorithmStyles[algorithmIndex%len(AlgorithmStyles)]
}

func (s ScatterStyle) ToTikzOptions() string {
	opts := "only marks,mark=" + s.Mark + ",color=" + s.Color
	if s.Fill {
		opts += ",fill=" + s.Color
	}
	return opts
}
