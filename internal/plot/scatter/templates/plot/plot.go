package templates

const PlotTemplate = `% Generated on {{.GeneratedDate}}
% Workloads: {{.WorkloadsName}}
% Cache ways: {{.TotalWays}}, Max bandwidth: {{.MaxBandwidth}}
\begin{tikzpicture}
\begin{axis}[
  width=9cm,
  height=8cm,
  grid=both,
  xlabel={ {{.XLabel}} },
  ylabel={ {{.YLabel}} },
  legend pos=north west,
  legend cell align=left,
  nodes near coords,
  point meta=explicit symbolic,
  every node near coord/.append style={font=\tiny, anchor=south west},
]

{{range .Series}}
% Algorithm: {{.Algorithm}} ({{len .Points}} workloads)
\addplot+[{{.Style}}] coordinates {
{{- range .Points}}
  ({{printf "%.4f" .X}}, {{printf "%.4f" .Y}}) [{{.Label}}]
{{- end}}
};
\addlegendentry{ {{.Algorithm}} };

{{end}}
\end{axis}
\end{tikzpicture}
`

type PlotData struct {
	GeneratedDate string
	WorkloadsName string
	TotalWays     int
	MaxBandwidth  string
	XLabel        string
	YLabel        string
	Series        []Series
}

type Series struct {
	Algorithm string
	Style     string
	Points    []Point
}

type Point struct {
	Label string
	X     float64
	Y     float64
}
