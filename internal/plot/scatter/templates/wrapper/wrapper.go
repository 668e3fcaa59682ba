package templates

const WrapperTemplate = `% Generated on {{.GeneratedDate}}
% Workloads: {{.WorkloadsName}}
\begin{figure}[htbp]
    \centering
	\resizebox{1\linewidth}{!}{\input{{"{"}}\currfiledir/{{.PlotFileName}}{{"}"}} } % chktex 27
    \caption[{{.ShortCaption}}]{ {{.Caption}} }
    \label{fig:stp-unf-{{.LabelID}}}
\end{figure}
`

type WrapperData struct {
	GeneratedDate string
	WorkloadsName string
	PlotFileName  string
	ShortCaption  string
	Caption       string
	LabelID       string
}
