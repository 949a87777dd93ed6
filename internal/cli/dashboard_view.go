package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"auditctl/internal/poller"
)

func (m dashboardModel) View() string {
	switch m.mode {
	case dashModeUpload:
		return m.viewUpload()
	case dashModeDeleteConfirm:
		return m.viewDeleteConfirm()
	case dashModeResults:
		return m.viewResults()
	default:
		return m.viewBrowse()
	}
}

func (m dashboardModel) header() string {
	return m.theme.Title.Render("auditctl dashboard") + "  " + m.theme.Muted.Render(m.apiURL)
}

func (m dashboardModel) viewBrowse() string {
	header := m.header() + "\n" +
		m.theme.Muted.Render("up/down: move | u: upload | a: analyse | enter: results | g: report | d: delete | r: refresh | R: retry | q: quit")

	if m.compact || m.width < 90 {
		list := m.renderFileList(m.width)
		details := m.renderJobPanel(m.width)
		status := m.renderStatusLine(m.width)
		return lipgloss.JoinVertical(lipgloss.Left, header, list, details, status)
	}

	leftW := clampInt(m.width/2, 34, 64)
	rightW := m.width - leftW - 1
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderFileList(leftW), m.renderJobPanel(rightW))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderStatusLine(m.width))
}

func (m dashboardModel) renderFileList(width int) string {
	total := len(m.files)
	maxRows := clampInt(m.height-12, 4, 20)
	start, end := listWindow(total, m.cursor, maxRows)

	lines := make([]string, 0, maxRows+3)
	if total == 0 {
		lines = append(lines, m.theme.Muted.Render("No files uploaded yet."))
		lines = append(lines, m.theme.Muted.Render("Press u to upload an accounting export."))
	}
	if start > 0 {
		lines = append(lines, m.theme.Muted.Render("..."))
	}
	for i := start; i < end; i++ {
		f := m.files[i]
		mark := " "
		if _, ok := m.results[f.FileID]; ok {
			mark = "✓"
		} else if _, ok := m.jobs[f.FileID]; ok {
			mark = "…"
		}
		line := fmt.Sprintf("[%s] %s  %s", mark, f.Filename, formatBytesIEC(f.SizeBytes))
		line = truncateRunes(line, maxInt(width-6, 10))
		if i == m.cursor {
			line = m.theme.Sel.Width(maxInt(width-4, 6)).Render(line)
		}
		lines = append(lines, line)
	}
	if end < total {
		lines = append(lines, m.theme.Muted.Render("..."))
	}
	return m.theme.Panel.Width(width).Render(strings.Join(lines, "\n"))
}

func (m dashboardModel) renderJobPanel(width int) string {
	f, ok := m.selectedFile()
	if !ok {
		return m.theme.Panel.Width(width).Render("Select or upload a file.")
	}
	lines := []string{
		"File Details",
		"",
		kv("name", f.Filename),
		kv("file_id", f.FileID),
		kv("size", formatBytesIEC(f.SizeBytes)),
		kv("uploaded", f.UploadTimestamp.String()),
		"",
	}

	v := m.view
	switch {
	case v.target.FileID == f.FileID && v.phase != poller.PhaseIdle:
		lines = append(lines, kv("job", shortID(v.target.JobID))+"  "+m.phaseBadge(v.phase))
		if v.phase.Polling() {
			m.bar.Width = clampInt(width-8, 10, 60)
			lines = append(lines, m.spinner.View()+" "+m.bar.ViewAs(v.progress/100))
		}
		if v.message != "" {
			style := m.theme.Muted
			switch {
			case v.phase == poller.PhaseCompleted:
				style = m.theme.OK
			case v.phase.Terminal():
				style = m.theme.Error
			}
			lines = append(lines, style.Render(v.message))
		}
		if v.retry != nil {
			lines = append(lines, m.theme.Muted.Render("R: "+v.retry.Label))
		}
	default:
		if res, done := m.results[f.FileID]; done && res != nil {
			lines = append(lines, m.theme.OK.Render(m.cat.Completed))
			lines = append(lines, kv("anomalies", strconv.Itoa(res.AnomalyCount)))
			lines = append(lines, m.theme.Muted.Render("enter: view results | g: report"))
		} else {
			lines = append(lines, m.theme.Muted.Render("Press a to start an analysis."))
		}
	}

	if res := m.results[f.FileID]; res != nil && len(res.Anomalies) > 0 && v.phase == poller.PhaseCompleted {
		lines = append(lines, kv("anomalies", strconv.Itoa(res.AnomalyCount)))
		lines = append(lines, kv("by type", formatTypeCounts(res.CountByType())))
	}

	for i := range lines {
		lines[i] = wrapOrTrim(lines[i], maxInt(width-6, 12))
	}
	return m.theme.Panel.Width(width).Render(strings.Join(lines, "\n"))
}

func (m dashboardModel) phaseBadge(p poller.Phase) string {
	key := string(p)
	switch p {
	case poller.PhaseAbortedAttempts, poller.PhaseAbortedErrors:
		key = "aborted"
	}
	style, ok := m.theme.Badge[key]
	if !ok {
		style = m.theme.Muted
	}
	return style.Render(strings.ToUpper(string(p)))
}

func (m dashboardModel) renderStatusLine(width int) string {
	if m.busy != "" {
		return m.theme.Muted.Render(m.spinner.View() + " " + m.busy + "...")
	}
	msg := strings.TrimSpace(m.statusMessage)
	if msg == "" {
		msg = "Tip: polling pauses when you move to another file and resumes when you come back."
	}
	style := m.theme.Muted
	lower := strings.ToLower(msg)
	if strings.HasPrefix(lower, "error:") {
		style = m.theme.Error
	} else if strings.HasPrefix(lower, "uploaded") || strings.HasPrefix(lower, "report saved") || strings.HasPrefix(lower, "deleted") || msg == m.cat.Completed {
		style = m.theme.OK
	}
	return style.Width(maxInt(width, 20)).Render(truncateRunes(msg, maxInt(width-2, 10)))
}

func (m dashboardModel) viewUpload() string {
	header := m.theme.Title.Render("Upload accounting export")
	hints := m.theme.Muted.Render("enter: upload | esc: cancel | accepted: .txt .csv .fec .xls .xlsx")
	panel := m.theme.Panel.Width(maxInt(m.width, 40)).Render("File path\n" + m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, header, hints, panel)
}

func (m dashboardModel) viewDeleteConfirm() string {
	name := m.confirmDeleteID
	for _, f := range m.files {
		if f.FileID == m.confirmDeleteID {
			name = f.Filename
			break
		}
	}
	text := fmt.Sprintf(
		"Delete '%s'?\n\nThe backend removes the file and its analysis.\n\nPress y or Enter to confirm, n or Esc to cancel.",
		name,
	)
	boxW := clampInt(m.width-8, 36, 80)
	boxH := clampInt(m.height-6, 7, 12)
	panel := m.theme.Panel.Width(boxW).Height(boxH).Render(text)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
}

func (m dashboardModel) viewResults() string {
	id := m.selectedFileID()
	res := m.results[id]
	if res == nil {
		return m.viewBrowse()
	}
	name := res.Filename
	if name == "" {
		if f, ok := m.selectedFile(); ok {
			name = f.Filename
		}
	}
	header := m.theme.Title.Render("Results: "+name) + "\n" +
		m.theme.Muted.Render("up/down: scroll | g: report | esc: back | q: quit")

	summary := fmt.Sprintf("%s  %s", kv("entries", strconv.Itoa(res.TotalEntries)), kv("anomalies", strconv.Itoa(res.AnomalyCount)))
	lines := []string{summary, kv("by type", formatTypeCounts(res.CountByType())), ""}
	if len(res.Anomalies) == 0 {
		lines = append(lines, m.theme.OK.Render("No anomalies detected."))
	}

	width := maxInt(m.width, 40)
	maxRows := clampInt((m.height-10)/2, 3, 30)
	start, end := listWindow(len(res.Anomalies), m.scroll, maxRows)
	for i := start; i < end; i++ {
		a := res.Anomalies[i]
		score := m.theme.confidenceStyle(a.ConfidenceScore).Render(formatPercent(a.ConfidenceScore * 100))
		line := fmt.Sprintf("%s %s  lines %s", score, a.Type, formatLines(a.LineNumbers))
		if i == m.scroll {
			line = "> " + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line, "    "+wrapOrTrim(a.Description, maxInt(width-10, 20)))
	}
	panel := m.theme.Panel.Width(width).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, header, panel, m.renderStatusLine(m.width))
}
